package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/stocktrader/stocktrader-api/internal/types"
	"github.com/stocktrader/stocktrader-api/pkg/response"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrUsernameTaken      = errors.New("username or email already registered")
	ErrTokenGeneration    = errors.New("failed to generate token")
)

// Every new account starts with the same seed balance.
var initialCashBalance = decimal.RequireFromString("100000.00")

const tokenLifetime = 24 * time.Hour

// Credentials represents a login request
type Credentials struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// RegisterRequest represents a registration request
type RegisterRequest struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
}

// TokenResponse represents the JWT token response
type TokenResponse struct {
	Token      string    `json:"jwt_token"`
	Expiration time.Time `json:"expiration"`
	AccountID  string    `json:"account_id"`
}

// Claims represents the JWT claims structure
type Claims struct {
	jwt.RegisteredClaims
	AccountID string `json:"account_id"`
	Username  string `json:"username"`
}

// Service handles registration, login, and token validation. The
// trading core never sees credentials; it consumes only the resolved
// account id carried in validated tokens.
type Service struct {
	db        *Database
	jwtSecret []byte
}

// NewService creates a new authentication service with the given JWT secret
func NewService(gormDB *gorm.DB, jwtSecret string) *Service {
	return &Service{
		db:        NewDatabase(gormDB),
		jwtSecret: []byte(jwtSecret),
	}
}

// Register creates a new account with a bcrypt-hashed password and the
// seed cash balance.
func (s *Service) Register(req RegisterRequest) (*types.Account, error) {
	logger := log.With().
		Str("username", req.Username).
		Str("service", "auth").
		Logger()

	existing, err := s.db.GetAccountByUsername(req.Username)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrUsernameTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	account := &types.Account{
		AccountID:    "ACC_" + uuid.New().String(),
		Username:     req.Username,
		Email:        strings.ToLower(req.Email),
		PasswordHash: string(hash),
		CashBalance:  initialCashBalance,
	}

	if err := s.db.CreateAccount(account); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, ErrUsernameTaken
		}
		logger.Error().Err(err).Msg("failed to create account")
		return nil, err
	}

	logger.Info().Str("account_id", account.AccountID).Msg("account registered")
	return account, nil
}

// Login verifies credentials and returns a signed JWT carrying the
// account id, with 24-hour expiration.
func (s *Service) Login(creds Credentials) (*TokenResponse, error) {
	account, err := s.db.GetAccountByUsername(creds.Username)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(creds.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	expiration := time.Now().Add(tokenLifetime)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiration),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
		AccountID: account.AccountID,
		Username:  account.Username,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return nil, ErrTokenGeneration
	}

	return &TokenResponse{
		Token:      tokenString,
		Expiration: expiration,
		AccountID:  account.AccountID,
	}, nil
}

// ValidateToken validates a JWT token and returns the claims
// Verifies token signature and expiration
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.jwtSecret, nil
	})

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, errors.New("invalid token")
}

// GinHandlers contains HTTP handlers for authentication endpoints
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for authentication endpoints
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// RegisterHandler handles POST requests to create a new account
func (h *GinHandlers) RegisterHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RegisterRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		account, err := h.service.Register(req)
		if errors.Is(err, ErrUsernameTaken) {
			response.Conflict(c, err.Error())
			return
		}
		response.Handle(c, account, err)
	}
}

// LoginHandler handles POST requests to exchange credentials for a JWT
func (h *GinHandlers) LoginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var creds Credentials
		if err := c.ShouldBindJSON(&creds); err != nil {
			response.BadRequest(c, "Invalid request body")
			return
		}

		token, err := h.service.Login(creds)
		if errors.Is(err, ErrInvalidCredentials) {
			response.Unauthorized(c, err.Error())
			return
		}
		response.Handle(c, token, err)
	}
}
