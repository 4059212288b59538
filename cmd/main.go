package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"coinwallet/internal/config"
	"coinwallet/internal/hold"
	"coinwallet/internal/wallet"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Println("no .env file loaded:", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	cfg := config.Load()

	db, err := gorm.Open(postgres.Open(cfg.Database.DSN), &gorm.Config{TranslateError: true})
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("failed to get database handle", zap.Error(err))
	}
	sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	if err := db.AutoMigrate(&wallet.Wallet{}, &wallet.Transaction{}, &hold.SpendHold{}); err != nil {
		logger.Fatal("failed to migrate database", zap.Error(err))
	}

	payoutCalc := wallet.NewPayoutCalculator(cfg.Payout.CoinRateCents, cfg.Payout.PlatformFeeRate)
	walletRepo := wallet.NewWalletRepositoryImpl(db)
	walletService := wallet.NewService(walletRepo, payoutCalc, logger)
	holdRepo := hold.NewHoldRepositoryImpl(db)
	holdService := hold.NewService(holdRepo, walletRepo, logger)
	reclaimer := hold.NewReclaimer(holdRepo, cfg.Ledger.StaleHoldThreshold, cfg.Ledger.SweepInterval, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go reclaimer.Run(ctx)

	r := gin.Default()

	r.POST("/transaction", func(c *gin.Context) {
		var req wallet.TransactionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		tx, err := walletService.CreateTransaction(c.Request.Context(), req)
		if err != nil {
			writeLedgerError(c, err)
			return
		}
		c.JSON(http.StatusOK, tx)
	})

	r.GET("/balance/:user_id", func(c *gin.Context) {
		b := walletService.GetBalance(c.Request.Context(), c.Param("user_id"))
		c.JSON(http.StatusOK, b)
	})

	r.GET("/transactions/:user_id", func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
		offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

		txs, err := walletService.ListTransactions(c.Request.Context(), c.Param("user_id"), limit, offset)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"transactions": txs})
	})

	r.POST("/hold", func(c *gin.Context) {
		var req hold.HoldRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		h, err := holdService.CreateHold(c.Request.Context(), req.UserID, req.Amount)
		if err != nil {
			writeLedgerError(c, err)
			return
		}
		c.JSON(http.StatusOK, h)
	})

	r.GET("/holds/:user_id", func(c *gin.Context) {
		holds, err := holdService.ActiveHolds(c.Request.Context(), c.Param("user_id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"holds": holds})
	})

	r.POST("/hold/:hold_id/release", func(c *gin.Context) {
		err := holdService.ReleaseHold(c.Request.Context(), c.Param("hold_id"))
		if err != nil {
			writeLedgerError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "released"})
	})

	r.POST("/hold/:hold_id/convert", func(c *gin.Context) {
		var req struct {
			UserID         string `json:"user_id"`
			FinalAmount    int64  `json:"final_amount"`
			Type           string `json:"type"`
			Description    string `json:"description"`
			IdempotencyKey string `json:"idempotency_key"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		tx, err := holdService.ConvertHoldToTransaction(c.Request.Context(), c.Param("hold_id"), req.FinalAmount, wallet.TransactionRequest{
			UserID:         req.UserID,
			Type:           req.Type,
			Description:    req.Description,
			IdempotencyKey: req.IdempotencyKey,
		})
		if err != nil {
			writeLedgerError(c, err)
			return
		}
		c.JSON(http.StatusOK, tx)
	})

	r.POST("/payout", func(c *gin.Context) {
		var req struct {
			UserID         string `json:"user_id"`
			Coins          int64  `json:"coins"`
			IdempotencyKey string `json:"idempotency_key"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		tx, quote, err := walletService.CreatePayout(c.Request.Context(), req.UserID, req.Coins, req.IdempotencyKey)
		if err != nil {
			writeLedgerError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"transaction": tx, "quote": quote})
	})

	// External cron trigger. The in-process ticker already sweeps; this exists so
	// an outside scheduler can force a run.
	r.POST("/internal/reclaim-holds", func(c *gin.Context) {
		if cfg.Ledger.CronSecret == "" || c.GetHeader("X-Cron-Secret") != cfg.Ledger.CronSecret {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		result, err := reclaimer.Sweep(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, result)
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("server started", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
}

func writeLedgerError(c *gin.Context, err error) {
	var insufficient *wallet.InsufficientBalanceError
	switch {
	case errors.As(err, &insufficient):
		c.JSON(http.StatusPaymentRequired, gin.H{
			"error":     "insufficient balance",
			"required":  insufficient.Required,
			"available": insufficient.Available,
			"total":     insufficient.Total,
			"held":      insufficient.Held,
		})
	case errors.Is(err, hold.ErrHoldNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, hold.ErrHoldNotActive):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, wallet.ErrMissingIdempotencyKey),
		errors.Is(err, wallet.ErrZeroAmount),
		errors.Is(err, wallet.ErrUnknownTransactionType),
		errors.Is(err, wallet.ErrInvalidPayoutAmount),
		errors.Is(err, hold.ErrInvalidAmount):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
