// Package rewardsbackend is the HTTP façade over the rewards service. It
// resolves a per-request identity, translates JSON payloads into domain
// calls, and maps domain errors onto stable HTTP error codes.
package rewardsbackend

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/Sharedvaluevending/revqr-rewards/internal/rewardsapi"
	"github.com/Sharedvaluevending/revqr-rewards/pkg/rewards"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const headerUserID = "X-User-ID"

// Run boots the HTTP façade using the supplied configuration and service.
func Run(ctx context.Context, cfg rewardsapi.Config, service *rewards.Service, clock rewards.Clock, logger *zap.Logger) error {
	handler := &httpHandler{
		logger:  logger,
		service: service,
		clock:   clock,
	}

	router := setupRouter(cfg, handler)

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("rewards api listening", zap.String("addr", cfg.ListenAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func setupRouter(cfg rewardsapi.Config, handler *httpHandler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Origin", "Accept", headerUserID},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	api.GET("/quota", handler.handleQuota)
	api.GET("/wallet", handler.handleWallet)
	api.POST("/votes", handler.handleVote)
	api.POST("/spins", handler.handleSpin)
	api.POST("/redemptions", handler.handleRedemption)
	api.GET("/avatar", handler.handleAvatarGet)
	api.POST("/avatar", handler.handleAvatarEquip)

	return router
}

type httpHandler struct {
	logger  *zap.Logger
	service *rewards.Service
	clock   rewards.Clock
}

// requestIdentity resolves who is acting: an authenticated user when the
// gateway forwarded a user header, an IP-derived guest otherwise. The same
// key doubles as the redemption identity.
func requestIdentity(ctx *gin.Context) (rewards.AccountID, rewards.IdentityKey, error) {
	key := "ip:" + ctx.ClientIP()
	if userID := ctx.GetHeader(headerUserID); userID != "" {
		key = "user:" + userID
	}
	account, err := rewards.NewAccountID(key)
	if err != nil {
		return rewards.AccountID{}, rewards.IdentityKey{}, err
	}
	identity, err := rewards.NewIdentityKey(key)
	if err != nil {
		return rewards.AccountID{}, rewards.IdentityKey{}, err
	}
	return account, identity, nil
}

func (handler *httpHandler) handleQuota(ctx *gin.Context) {
	account, _, err := requestIdentity(ctx)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	quota, err := handler.service.ResolveQuota(ctx.Request.Context(), account)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"daily_free_remaining":    quota.DailyFreeRemaining,
		"weekly_bonus_remaining":  quota.WeeklyBonusRemaining,
		"premium_votes_available": quota.PremiumVotesAvailable,
	})
}

func (handler *httpHandler) handleWallet(ctx *gin.Context) {
	account, _, err := requestIdentity(ctx)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	handler.respondWithWallet(ctx, account)
}

type voteRequest struct {
	ItemID     string `json:"item_id"`
	Direction  string `json:"direction"`
	CampaignID string `json:"campaign_id"`
	MachineID  string `json:"machine_id"`
	Method     string `json:"method"`
}

func (handler *httpHandler) handleVote(ctx *gin.Context) {
	account, _, err := requestIdentity(ctx)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	var request voteRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	direction, err := rewards.ParseVoteDirection(request.Direction)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	scope, err := resolveScope(request)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	if request.Method == "" {
		request.Method = rewards.MethodAuto.String()
	}
	method, err := rewards.ParseVoteMethod(request.Method)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}

	result, err := handler.service.CastVote(ctx.Request.Context(), account, request.ItemID, direction, scope, method)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"vote_id":     result.VoteID,
		"method":      result.Method.String(),
		"payout":      result.Payout.Int64(),
		"coin_delta":  result.CoinDelta.Int64(),
		"perks_fired": result.PerksFired,
	})
}

func resolveScope(request voteRequest) (rewards.VoteScope, error) {
	switch {
	case request.CampaignID != "" && request.MachineID != "":
		return rewards.VoteScope{}, rewards.ErrInvalidVoteScope
	case request.CampaignID != "":
		return rewards.NewCampaignScope(request.CampaignID)
	case request.MachineID != "":
		return rewards.NewMachineScope(request.MachineID)
	}
	return rewards.VoteScope{}, rewards.ErrInvalidVoteScope
}

type spinRequest struct {
	WheelID string `json:"wheel_id"`
}

func (handler *httpHandler) handleSpin(ctx *gin.Context) {
	account, _, err := requestIdentity(ctx)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	var request spinRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	result, err := handler.service.Spin(ctx.Request.Context(), account, request.WheelID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"spin_id":     result.SpinID,
		"prize":       result.Prize.Name,
		"rarity":      result.Prize.RarityLevel,
		"coin_delta":  result.CoinDelta.Int64(),
		"suppressed":  result.Suppressed,
		"extra_spin":  result.ExtraSpin,
		"perks_fired": result.PerksFired,
	})
}

type redemptionRequest struct {
	PromotionID string `json:"promotion_id"`
}

func (handler *httpHandler) handleRedemption(ctx *gin.Context) {
	_, identity, err := requestIdentity(ctx)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	var request redemptionRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	promotionID, err := rewards.NewPromotionID(request.PromotionID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	record, err := handler.service.TryRedeem(ctx.Request.Context(), promotionID, identity)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"promotion_id":     record.PromotionID,
		"redeemed_at_unix": record.CreatedUnixUTC,
	})
}

func (handler *httpHandler) handleAvatarGet(ctx *gin.Context) {
	account, _, err := requestIdentity(ctx)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	avatarID, err := handler.service.EquippedAvatarID(ctx.Request.Context(), account)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	perks, err := handler.service.ActivePerks(ctx.Request.Context(), account, handler.clock.Now())
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"avatar_id":      avatarID,
		"day_restricted": perks.DayRestricted,
		"perks": gin.H{
			"vote_bonus":                  perks.VoteBonus.Int64(),
			"spin_bonus":                  perks.SpinBonus.Int64(),
			"activity_multiplier":         perks.ActivityMultiplier,
			"daily_bonus_multiplier":      perks.DailyBonusMultiplier,
			"weekend_earnings_multiplier": perks.WeekendEarningsMultiplier,
			"spin_prize_multiplier":       perks.SpinPrizeMultiplier,
			"vote_protection":             perks.VoteProtection,
			"spin_immunity":               perks.SpinImmunity,
		},
	})
}

type equipRequest struct {
	AvatarID string `json:"avatar_id"`
}

func (handler *httpHandler) handleAvatarEquip(ctx *gin.Context) {
	account, _, err := requestIdentity(ctx)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	var request equipRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	if err := handler.service.EquipAvatar(ctx.Request.Context(), account, request.AvatarID); err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"avatar_id": request.AvatarID})
}

func (handler *httpHandler) respondWithWallet(ctx *gin.Context, account rewards.AccountID) {
	balance, err := handler.service.Balance(ctx.Request.Context(), account)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	cutoff := handler.clock.Now().Add(time.Second).Unix()
	entries, err := handler.service.Entries(ctx.Request.Context(), account, cutoff, rewardsapi.WalletHistoryLimit())
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	payloads := make([]entryPayload, 0, len(entries))
	for _, entry := range entries {
		payloads = append(payloads, entryPayload{
			EntryID:        entry.EntryID,
			Direction:      entry.Direction.String(),
			Category:       entry.Category.String(),
			Amount:         entry.Amount.Int64(),
			SignedAmount:   entry.Signed().Int64(),
			Reason:         entry.Reason,
			CreatedUnixUTC: entry.CreatedUnixUTC,
		})
	}
	ctx.JSON(http.StatusOK, gin.H{
		"balance": balance.Int64(),
		"entries": payloads,
	})
}

type entryPayload struct {
	EntryID        string `json:"entry_id"`
	Direction      string `json:"direction"`
	Category       string `json:"category"`
	Amount         int64  `json:"amount"`
	SignedAmount   int64  `json:"signed_amount"`
	Reason         string `json:"reason"`
	CreatedUnixUTC int64  `json:"created_unix_utc"`
}

// respondError maps domain errors onto HTTP statuses with stable codes.
// Quota, balance and redemption failures are ordinary client outcomes;
// only configuration and storage faults reach the error log.
func (handler *httpHandler) respondError(ctx *gin.Context, err error) {
	status, code := classifyError(err)
	if status >= http.StatusInternalServerError {
		handler.logger.Error("request failed", zap.String("path", ctx.FullPath()), zap.Error(err))
	}
	ctx.JSON(status, errorResponse(code, err.Error()))
}

func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, rewards.ErrNoFreeVotes):
		return http.StatusTooManyRequests, "no_free_votes"
	case errors.Is(err, rewards.ErrQuotaExhausted):
		return http.StatusTooManyRequests, "quota_exhausted"
	case errors.Is(err, rewards.ErrInsufficientCoins), errors.Is(err, rewards.ErrInsufficientBalance):
		return http.StatusConflict, "insufficient_coins"
	case errors.Is(err, rewards.ErrAlreadyRedeemed):
		return http.StatusConflict, "already_redeemed"
	case errors.Is(err, rewards.ErrPromotionExpired):
		return http.StatusGone, "promotion_expired"
	case errors.Is(err, rewards.ErrInvalidPromotion):
		return http.StatusNotFound, "unknown_promotion"
	case errors.Is(err, rewards.ErrUnknownWheel):
		return http.StatusNotFound, "unknown_wheel"
	case errors.Is(err, rewards.ErrUnknownAvatar):
		return http.StatusNotFound, "unknown_avatar"
	case errors.Is(err, rewards.ErrInvalidVote),
		errors.Is(err, rewards.ErrInvalidVoteScope),
		errors.Is(err, rewards.ErrInvalidVoteMethod),
		errors.Is(err, rewards.ErrInvalidDirection),
		errors.Is(err, rewards.ErrInvalidAccountID),
		errors.Is(err, rewards.ErrInvalidIdentity),
		errors.Is(err, rewards.ErrInvalidAmount):
		return http.StatusBadRequest, "invalid_payload"
	case errors.Is(err, rewards.ErrConfiguration):
		return http.StatusInternalServerError, "configuration_error"
	}
	return http.StatusInternalServerError, "internal_error"
}

func errorResponse(code string, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}
