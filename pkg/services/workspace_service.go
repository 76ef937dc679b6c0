package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	config "biz-insight-api/configs"
	"biz-insight-api/pkg/apperrors"
	"biz-insight-api/pkg/models"

	"github.com/patrickmn/go-cache"
)

// ErrCustomerNotFound は指定IDの顧客が存在しないことを示します。
var ErrCustomerNotFound = errors.New("customer not found")

// Workspace はユーザーごとの作業状態 (アップロード済みデータ、最新の分析、顧客一覧) です。
// サーバー再起動で失われます。
type Workspace struct {
	mu sync.Mutex

	records  []models.SalesRecord
	dataJSON string
	analysis *models.AnalysisResult
	// generation はアップロードと分析実行のたびに進む。
	// 分析結果は開始時の世代が現在の世代と一致する場合のみ保存される。
	generation uint64
	customers  []models.Customer
}

func newWorkspace(seed []config.SeedCustomer) *Workspace {
	customers := make([]models.Customer, 0, len(seed))
	for _, c := range seed {
		customers = append(customers, models.Customer{
			ID:           c.ID,
			Name:         c.Name,
			Email:        c.Email,
			LastPurchase: c.LastPurchase,
		})
	}
	return &Workspace{customers: customers}
}

// SetRecords はアップロードされたレコードで置き換え、既存の分析結果を無効にします。
func (w *Workspace) SetRecords(records []models.SalesRecord) error {
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("レコードのJSON化に失敗: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.records = records
	w.dataJSON = string(data)
	w.analysis = nil
	w.generation++
	return nil
}

// Records はアップロード済みのレコードを返します。
func (w *Workspace) Records() []models.SalesRecord {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.records
}

// BeginAnalysis は分析対象のJSONと、この実行の世代番号を返します。
func (w *Workspace) BeginAnalysis() (string, uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.dataJSON == "" {
		return "", w.generation
	}
	w.generation++
	return w.dataJSON, w.generation
}

// CommitAnalysis は世代が最新の場合のみ結果を保存します。古い結果は破棄してfalseを返します。
func (w *Workspace) CommitAnalysis(result *models.AnalysisResult, generation uint64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if generation != w.generation {
		return false
	}
	result.Generation = generation
	w.analysis = result
	return true
}

// Analysis は最新の分析結果を返します。未実行ならnilです。
func (w *Workspace) Analysis() *models.AnalysisResult {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.analysis
}

// Customers は顧客一覧のコピーを返します。
func (w *Workspace) Customers() []models.Customer {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]models.Customer, len(w.customers))
	copy(out, w.customers)
	return out
}

// Customer はIDで顧客を探します。
func (w *Workspace) Customer(id int) (models.Customer, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, c := range w.customers {
		if c.ID == id {
			return c, nil
		}
	}
	return models.Customer{}, ErrCustomerNotFound
}

// AddCustomer は顧客を追加します。IDは既存の最大値+1です。
func (w *Workspace) AddCustomer(name, email, lastPurchase string) (models.Customer, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	if name == "" || email == "" {
		return models.Customer{}, apperrors.Invalid("Name and email are required.")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return models.Customer{}, apperrors.Invalid(fmt.Sprintf("Invalid email address: %s", email))
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	maxID := 0
	for _, c := range w.customers {
		if c.ID > maxID {
			maxID = c.ID
		}
	}
	customer := models.Customer{
		ID:           maxID + 1,
		Name:         name,
		Email:        email,
		LastPurchase: strings.TrimSpace(lastPurchase),
	}
	w.customers = append(w.customers, customer)
	return customer, nil
}

// WorkspaceService はユーザー名をキーにWorkspaceを保持します。
// 最後のアクセスからttlが経過したWorkspaceは破棄されます。
type WorkspaceService struct {
	mu         sync.Mutex
	workspaces *cache.Cache
	ttl        time.Duration
	seed       []config.SeedCustomer
}

// NewWorkspaceService 新しいWorkspaceServiceを作成
func NewWorkspaceService(ttl time.Duration, seed []config.SeedCustomer) *WorkspaceService {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &WorkspaceService{
		workspaces: cache.New(ttl, 10*time.Minute),
		ttl:        ttl,
		seed:       seed,
	}
}

// Get はユーザーのWorkspaceを返します。存在しなければ作成します。
func (s *WorkspaceService) Get(username string) *Workspace {
	s.mu.Lock()
	defer s.mu.Unlock()

	ws, ok := s.workspaces.Get(username)
	if !ok {
		ws = newWorkspace(s.seed)
	}
	// アクセスのたびに有効期限を延ばす
	s.workspaces.Set(username, ws, s.ttl)
	return ws.(*Workspace)
}

// Drop はユーザーのWorkspaceを破棄します (ログアウト時)。
func (s *WorkspaceService) Drop(username string) {
	s.workspaces.Delete(username)
}
