// Package customer は来店客の識別と来店回数管理のドメインロジックを提供する。
package customer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/loyalty/internal/model"
	"github.com/hitoshi/loyalty/internal/repository"
	"github.com/hitoshi/loyalty/internal/security"
)

// DefaultVisitCooldown は同一顧客のチェックインを1回と数える間隔のデフォルト値。
const DefaultVisitCooldown = 6 * time.Hour

// NameSanitizer は表示名の正規化インターフェース。
type NameSanitizer interface {
	Sanitize(raw string) (string, error)
}

// MetricsRecorder は顧客操作のメトリクス記録インターフェース。
type MetricsRecorder interface {
	RecordCustomerResolved(created bool)
	RecordVisitRecorded()
}

// Config は顧客サービスの設定。
type Config struct {
	// VisitCooldown は前回の来店からこの時間が経過するまで、チェックインを来店回数に数えない。
	// 0の場合は毎回加算する。
	VisitCooldown time.Duration
}

// Service は顧客識別のサービス層。
// 電話番号による名寄せ、新規登録、チェックイン、管理画面向けの一覧と集計を提供する。
type Service struct {
	repo      repository.CustomerRepository
	sanitizer NameSanitizer
	metrics   MetricsRecorder
	config    Config
	now       func() time.Time
}

// NewService はServiceを生成する。sanitizerがnilの場合はsecurity.NewNameSanitizerを使う。
// metricsはnilでもよい。
func NewService(repo repository.CustomerRepository, sanitizer NameSanitizer, metrics MetricsRecorder, config Config) *Service {
	if sanitizer == nil {
		sanitizer = security.NewNameSanitizer()
	}
	return &Service{
		repo:      repo,
		sanitizer: sanitizer,
		metrics:   metrics,
		config:    config,
		now:       time.Now,
	}
}

// Resolve は電話番号で顧客を名寄せする。
// 既存顧客はそのまま返し（来店回数は加算しない）、未登録なら来店回数1で作成する。
// 2番目の戻り値は新規作成したかどうか。
// 同時登録で一意制約に負けた場合は勝者のレコードを読み直して返す。
func (s *Service) Resolve(ctx context.Context, name, rawPhone string) (*model.Customer, bool, error) {
	phone, err := NormalizePhone(rawPhone)
	if err != nil {
		return nil, false, err
	}

	existing, err := s.repo.FindByPhone(ctx, phone)
	if err == nil {
		s.recordResolved(false)
		return existing, false, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return nil, false, fmt.Errorf("顧客の検索に失敗しました: %w", err)
	}

	cleanName, err := s.sanitizer.Sanitize(name)
	if err != nil {
		return nil, false, model.NewInvalidNameError(err.Error())
	}

	created, err := s.repo.Create(ctx, cleanName, phone, s.now().UTC())
	if errors.Is(err, model.ErrConflict) {
		return s.resolveAfterConflict(ctx, phone)
	}
	if err != nil {
		return nil, false, fmt.Errorf("顧客の作成に失敗しました: %w", err)
	}

	slog.Info("新規顧客を登録しました",
		slog.String("customer_id", created.ID),
		slog.String("phone_suffix", maskPhone(phone)),
	)
	s.recordResolved(true)
	return created, true, nil
}

// resolveAfterConflict は同時登録の敗者側で勝者のレコードを読み直す。
// 読み直しでも見つからない場合はConflictを返し、呼び出し側に再試行させる。
func (s *Service) resolveAfterConflict(ctx context.Context, phone string) (*model.Customer, bool, error) {
	winner, err := s.repo.FindByPhone(ctx, phone)
	if errors.Is(err, model.ErrNotFound) {
		return nil, false, model.NewCustomerConflictError()
	}
	if err != nil {
		return nil, false, fmt.Errorf("競合後の顧客再取得に失敗しました: %w", err)
	}

	slog.Info("同時登録を既存顧客に解決しました",
		slog.String("customer_id", winner.ID),
	)
	s.recordResolved(false)
	return winner, false, nil
}

// FindByPhone は電話番号を正規化して顧客を検索する。
// 見つからない場合はCUSTOMER_NOT_FOUNDエラーを返す。
func (s *Service) FindByPhone(ctx context.Context, rawPhone string) (*model.Customer, error) {
	phone, err := NormalizePhone(rawPhone)
	if err != nil {
		return nil, err
	}

	c, err := s.repo.FindByPhone(ctx, phone)
	if errors.Is(err, model.ErrNotFound) {
		return nil, model.NewCustomerNotFoundError()
	}
	if err != nil {
		return nil, fmt.Errorf("顧客の検索に失敗しました: %w", err)
	}
	return c, nil
}

// CheckIn は来店を記録する。
// 前回の来店（updatedAt）からVisitCooldown未満の場合は加算せずにそのまま返す。
// 2番目の戻り値は来店回数を加算したかどうか。
func (s *Service) CheckIn(ctx context.Context, customerID string) (*model.Customer, bool, error) {
	c, err := s.repo.FindByID(ctx, customerID)
	if errors.Is(err, model.ErrNotFound) {
		return nil, false, model.NewCustomerNotFoundError()
	}
	if err != nil {
		return nil, false, fmt.Errorf("顧客の取得に失敗しました: %w", err)
	}

	now := s.now().UTC()
	if s.config.VisitCooldown > 0 && now.Sub(c.UpdatedAt) < s.config.VisitCooldown {
		return c, false, nil
	}

	updated, err := s.repo.IncrementVisit(ctx, customerID, now)
	if errors.Is(err, model.ErrNotFound) {
		return nil, false, model.NewCustomerNotFoundError()
	}
	if err != nil {
		return nil, false, fmt.Errorf("来店回数の更新に失敗しました: %w", err)
	}

	slog.Info("来店を記録しました",
		slog.String("customer_id", updated.ID),
		slog.Int("visits", updated.Visits),
	)
	if s.metrics != nil {
		s.metrics.RecordVisitRecorded()
	}
	return updated, true, nil
}

// List は全顧客を登録順で返す。
func (s *Service) List(ctx context.Context) ([]*model.Customer, error) {
	customers, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("顧客一覧の取得に失敗しました: %w", err)
	}
	return customers, nil
}

// Stats は顧客数と来店回数の集計を返す。
func (s *Service) Stats(ctx context.Context) (model.CustomerStats, error) {
	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return model.CustomerStats{}, fmt.Errorf("顧客集計の取得に失敗しました: %w", err)
	}
	return stats, nil
}

func (s *Service) recordResolved(created bool) {
	if s.metrics != nil {
		s.metrics.RecordCustomerResolved(created)
	}
}

// maskPhone はログ出力用に電話番号の末尾4桁だけを残す。
func maskPhone(phone string) string {
	if len(phone) <= 4 {
		return "****"
	}
	return "****" + phone[len(phone)-4:]
}
