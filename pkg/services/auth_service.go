package services

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"biz-insight-api/pkg/apperrors"
	"biz-insight-api/pkg/models"
	"biz-insight-api/pkg/store"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrUsernameTaken は登録済みのユーザー名での登録を示します。
	ErrUsernameTaken = errors.New("Username already exists.")
	// ErrInvalidCredentials はユーザー名またはパスワードの不一致です。
	ErrInvalidCredentials = errors.New("Invalid username or password.")
	// ErrSessionInvalid はセッショントークンが無効または期限切れであることを示します。
	ErrSessionInvalid = errors.New("session is invalid or expired")
)

// Session ログインセッション
type Session struct {
	Token     string    `json:"token"`
	Username  string    `json:"username"`
	ExpiresAt time.Time `json:"expires_at"`
}

// AuthService はユーザー登録・ログインとセッション管理を行います。
type AuthService struct {
	db       *store.DB
	sessions *cache.Cache
	ttl      time.Duration
	hashCost int
}

// NewAuthService 新しいAuthServiceを作成
func NewAuthService(db *store.DB, ttl time.Duration) *AuthService {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &AuthService{
		db:       db,
		sessions: cache.New(ttl, 10*time.Minute),
		ttl:      ttl,
		hashCost: bcrypt.DefaultCost,
	}
}

func validateCredentials(username, password string) (string, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return "", apperrors.Invalid("Username and password are required.")
	}
	return username, nil
}

// Register はユーザーを登録し、そのままログインしたセッションを返します。
func (s *AuthService) Register(username, password string) (*Session, error) {
	username, err := validateCredentials(username, password)
	if err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return nil, apperrors.Invalid("Password must be at most 72 bytes.")
		}
		return nil, fmt.Errorf("パスワードのハッシュ化に失敗: %w", err)
	}

	user := models.User{Username: username, PasswordHash: hash, CreatedAt: time.Now().UTC()}
	if err := s.db.CreateUser(user); err != nil {
		if errors.Is(err, store.ErrUserExists) {
			return nil, ErrUsernameTaken
		}
		return nil, fmt.Errorf("ユーザーの保存に失敗: %w", err)
	}

	log.Printf("✅ [auth] ユーザーを登録しました: %s", username)
	return s.newSession(username), nil
}

// Login は資格情報を検証してセッションを発行します。
func (s *AuthService) Login(username, password string) (*Session, error) {
	username, err := validateCredentials(username, password)
	if err != nil {
		return nil, err
	}

	user, err := s.db.GetUser(username)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("ユーザーの取得に失敗: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)); err != nil {
		log.Printf("⚠️ [auth] ログイン失敗: %s", username)
		return nil, ErrInvalidCredentials
	}

	return s.newSession(username), nil
}

func (s *AuthService) newSession(username string) *Session {
	session := &Session{
		Token:     uuid.NewString(),
		Username:  username,
		ExpiresAt: time.Now().Add(s.ttl),
	}
	s.sessions.Set(session.Token, session, s.ttl)
	return session
}

// Authenticate はトークンに対応するユーザー名を返します。
func (s *AuthService) Authenticate(token string) (string, error) {
	if token == "" {
		return "", ErrSessionInvalid
	}
	v, ok := s.sessions.Get(token)
	if !ok {
		return "", ErrSessionInvalid
	}
	return v.(*Session).Username, nil
}

// Logout はセッションを破棄し、そのユーザー名を返します。
func (s *AuthService) Logout(token string) (string, bool) {
	v, ok := s.sessions.Get(token)
	if !ok {
		return "", false
	}
	s.sessions.Delete(token)
	return v.(*Session).Username, true
}

// HasSession はユーザーに有効なセッションが残っているかを返します。
func (s *AuthService) HasSession(username string) bool {
	for _, item := range s.sessions.Items() {
		if session, ok := item.Object.(*Session); ok && session.Username == username {
			return true
		}
	}
	return false
}
