package auth

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"ossim/backend/pkg/config"
)

const defaultTokenTTL = 12 * time.Hour

type Credentials struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type User struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	Role      Role      `json:"role"`
	LastLogin time.Time `json:"last_login,omitempty"`
}

type Token struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type Claims struct {
	UserID   uuid.UUID `json:"user_id"`
	Username string    `json:"username"`
	Role     Role      `json:"role"`
	jwt.RegisteredClaims
}

// LocalProvider authenticates the users listed in the configuration and signs
// HS256 access tokens.
type LocalProvider struct {
	mu        sync.RWMutex
	users     map[string]*User
	passwords map[string]string
	jwtSecret []byte
	issuer    string
	ttl       time.Duration
	now       func() time.Time
}

// NewLocalProvider loads cfg.Users. Plaintext passwords are hashed here so
// only bcrypt hashes are held in memory.
func NewLocalProvider(cfg config.AuthConfig) (*LocalProvider, error) {
	p := &LocalProvider{
		users:     make(map[string]*User),
		passwords: make(map[string]string),
		jwtSecret: []byte(cfg.JWTSecret),
		issuer:    cfg.Issuer,
		ttl:       cfg.TokenTTL,
		now:       time.Now,
	}
	if p.ttl <= 0 {
		p.ttl = defaultTokenTTL
	}

	for _, u := range cfg.Users {
		if err := p.AddUser(u); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *LocalProvider) AddUser(u config.UserConfig) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	name := strings.TrimSpace(u.Username)
	if name == "" {
		return fmt.Errorf("%w: empty username", ErrInvalidCredentials)
	}
	if _, exists := p.users[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateUser, name)
	}
	role, err := ParseRole(u.Role)
	if err != nil {
		return fmt.Errorf("user %s: %w", name, err)
	}

	hash := u.PasswordHash
	if hash == "" {
		hashed, err := bcrypt.GenerateFromPassword([]byte(u.Password), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("hash password for %s: %w", name, err)
		}
		hash = string(hashed)
	}

	p.users[name] = &User{
		ID:       uuid.NewSHA1(uuid.NameSpaceOID, []byte("ossim-user:"+name)),
		Username: name,
		Role:     role,
	}
	p.passwords[name] = hash
	return nil
}

func (p *LocalProvider) Authenticate(ctx context.Context, creds Credentials) (*User, error) {
	p.mu.RLock()
	user, exists := p.users[creds.Username]
	hash := p.passwords[creds.Username]
	p.mu.RUnlock()
	if !exists {
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(creds.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	p.mu.Lock()
	user.LastLogin = p.now()
	out := *user
	p.mu.Unlock()
	return &out, nil
}

func (p *LocalProvider) GenerateToken(user *User) (*Token, error) {
	now := p.now()
	expiry := now.Add(p.ttl)

	claims := &Claims{
		UserID:   user.ID,
		Username: user.Username,
		Role:     user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    p.issuer,
			Subject:   user.ID.String(),
			ExpiresAt: jwt.NewNumericDate(expiry),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.jwtSecret)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}

	return &Token{
		AccessToken: signed,
		TokenType:   "Bearer",
		ExpiresAt:   expiry,
	}, nil
}

func (p *LocalProvider) ValidateToken(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(p.now),
	}
	if p.issuer != "" {
		opts = append(opts, jwt.WithIssuer(p.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return p.jwtSecret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	p.mu.RLock()
	_, exists := p.users[claims.Username]
	p.mu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("%w: unknown user %s", ErrInvalidToken, claims.Username)
	}
	return claims, nil
}

func (p *LocalProvider) Users() []User {
	p.mu.RLock()
	users := make([]User, 0, len(p.users))
	for _, u := range p.users {
		users = append(users, *u)
	}
	p.mu.RUnlock()

	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users
}
