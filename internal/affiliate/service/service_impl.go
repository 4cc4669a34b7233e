package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/mail"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/hightide/internal/affiliate/domain"
	campaigndomain "github.com/smallbiznis/hightide/internal/campaign/domain"
	"github.com/smallbiznis/hightide/internal/clock"
	"github.com/smallbiznis/hightide/internal/config"
	notificationdomain "github.com/smallbiznis/hightide/internal/notification/domain"
	"github.com/smallbiznis/hightide/pkg/db"
	"github.com/smallbiznis/hightide/pkg/db/pagination"
	"github.com/smallbiznis/hightide/pkg/refslug"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	maxDurationMonths = 120
	inviteCodeBytes   = 16
)

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Clock        clock.Clock
	Repo         domain.Repository
	CampaignRepo campaigndomain.Repository
	Program      *config.ProgramHolder
	Outbox       notificationdomain.Outbox
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	clock        clock.Clock
	repo         domain.Repository
	campaignRepo campaigndomain.Repository
	program      *config.ProgramHolder
	outbox       notificationdomain.Outbox
}

func New(p Params) domain.Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("affiliate.service"),
		genID:        p.GenID,
		clock:        p.Clock,
		repo:         p.Repo,
		campaignRepo: p.CampaignRepo,
		program:      p.Program,
		outbox:       p.Outbox,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (domain.Affiliate, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Affiliate{}, domain.ErrInvalidName
	}
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return domain.Affiliate{}, err
	}

	role := req.Role
	if role == "" {
		role = domain.RoleAffiliate
	}
	if role != domain.RoleAffiliate && role != domain.RoleAdmin {
		return domain.Affiliate{}, domain.ErrInvalidRole
	}

	program := s.program.Get()
	rate := valueOr(req.CommissionRate, program.DefaultCommissionRate)
	duration := valueOr(req.CommissionDurationMonths, program.DefaultDurationMonths)
	subRate := valueOr(req.SubAffiliateRate, program.DefaultSubAffiliateRate)
	if err := validateTerms(rate, duration, subRate); err != nil {
		return domain.Affiliate{}, err
	}

	tier := 1
	var parentID *snowflake.ID
	if raw := strings.TrimSpace(req.ParentID); raw != "" {
		id, err := parseID(raw)
		if err != nil {
			return domain.Affiliate{}, err
		}
		parent, err := s.repo.FindByID(ctx, s.db, id)
		if err != nil {
			return domain.Affiliate{}, err
		}
		if parent == nil {
			return domain.Affiliate{}, domain.ErrParentNotFound
		}
		tier = parent.Tier + 1
		parentID = &parent.ID
	}
	if tier > domain.MaxTierDepth {
		return domain.Affiliate{}, domain.ErrTierDepthExceeded
	}

	if err := s.ensureEmailAvailable(ctx, email); err != nil {
		return domain.Affiliate{}, err
	}
	slug, err := s.reserveSlug(ctx, req.Slug, name)
	if err != nil {
		return domain.Affiliate{}, err
	}

	now := s.clock.Now()
	affiliate := domain.Affiliate{
		ID:                       s.genID.Generate(),
		Slug:                     slug,
		Name:                     name,
		Email:                    email,
		CommissionRate:           rate,
		CommissionDurationMonths: duration,
		SubAffiliateRate:         subRate,
		ParentID:                 parentID,
		Tier:                     tier,
		Status:                   domain.StatusActive,
		Role:                     role,
		CreatedAt:                now,
		UpdatedAt:                now,
	}
	if err := s.insert(ctx, s.db, &affiliate); err != nil {
		return domain.Affiliate{}, err
	}

	s.log.Info("affiliate created",
		zap.String("affiliate_id", affiliate.ID.String()),
		zap.String("slug", affiliate.Slug),
		zap.Int("tier", affiliate.Tier),
	)
	return affiliate, nil
}

// Invite lets an active affiliate recruit a sub-affiliate. The child starts
// invited and only becomes creditable once the invite is accepted.
func (s *Service) Invite(ctx context.Context, parentID snowflake.ID, req domain.InviteRequest) (domain.Affiliate, error) {
	program := s.program.Get()
	if !program.AllowAffiliateRecruitment {
		return domain.Affiliate{}, domain.ErrRecruitmentDisabled
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Affiliate{}, domain.ErrInvalidName
	}
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return domain.Affiliate{}, err
	}

	parent, err := s.repo.FindByID(ctx, s.db, parentID)
	if err != nil {
		return domain.Affiliate{}, err
	}
	if parent == nil {
		return domain.Affiliate{}, domain.ErrParentNotFound
	}
	if !parent.IsActive() {
		return domain.Affiliate{}, domain.ErrParentInactive
	}
	if parent.Tier+1 > domain.MaxTierDepth {
		return domain.Affiliate{}, domain.ErrTierDepthExceeded
	}

	if err := s.ensureEmailAvailable(ctx, email); err != nil {
		return domain.Affiliate{}, err
	}
	slug, err := s.reserveSlug(ctx, req.Slug, name)
	if err != nil {
		return domain.Affiliate{}, err
	}
	code, err := newInviteCode()
	if err != nil {
		return domain.Affiliate{}, err
	}

	now := s.clock.Now()
	child := domain.Affiliate{
		ID:                       s.genID.Generate(),
		Slug:                     slug,
		Name:                     name,
		Email:                    email,
		CommissionRate:           program.DefaultCommissionRate,
		CommissionDurationMonths: program.DefaultDurationMonths,
		SubAffiliateRate:         program.DefaultSubAffiliateRate,
		ParentID:                 &parent.ID,
		Tier:                     parent.Tier + 1,
		Status:                   domain.StatusInvited,
		Role:                     domain.RoleAffiliate,
		InviteCode:               &code,
		CreatedAt:                now,
		UpdatedAt:                now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.insert(ctx, tx, &child); err != nil {
			return err
		}
		return s.outbox.Enqueue(ctx, tx, notificationdomain.Intent{
			Kind:      notificationdomain.KindAffiliateInvited,
			Recipient: child.Email,
			DedupeKey: "affiliate_invited:" + child.ID.String(),
			Payload: map[string]any{
				"name":         child.Name,
				"slug":         child.Slug,
				"invite_code":  code,
				"inviter_name": parent.Name,
			},
		})
	})
	if err != nil {
		return domain.Affiliate{}, err
	}

	s.log.Info("sub-affiliate invited",
		zap.String("affiliate_id", child.ID.String()),
		zap.String("parent_id", parent.ID.String()),
	)
	return child, nil
}

func (s *Service) AcceptInvite(ctx context.Context, code string) (domain.Affiliate, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return domain.Affiliate{}, domain.ErrInviteNotFound
	}

	affiliate, err := s.repo.FindByInviteCode(ctx, s.db, code)
	if err != nil {
		return domain.Affiliate{}, err
	}
	if affiliate == nil || affiliate.Status != domain.StatusInvited {
		return domain.Affiliate{}, domain.ErrInviteNotFound
	}

	now := s.clock.Now()
	affected, err := s.repo.Activate(ctx, s.db, affiliate.ID, now)
	if err != nil {
		return domain.Affiliate{}, err
	}
	if affected == 0 {
		return domain.Affiliate{}, domain.ErrInviteNotFound
	}

	affiliate.Status = domain.StatusActive
	affiliate.InviteCode = nil
	affiliate.UpdatedAt = now
	return *affiliate, nil
}

// UpdateTerms changes future terms only. Existing commissions carry their own
// rate snapshot.
func (s *Service) UpdateTerms(ctx context.Context, id string, req domain.UpdateRequest) (domain.Affiliate, error) {
	affiliate, err := s.Get(ctx, id)
	if err != nil {
		return domain.Affiliate{}, err
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Affiliate{}, domain.ErrInvalidName
		}
		affiliate.Name = name
	}
	if req.CommissionRate != nil {
		affiliate.CommissionRate = *req.CommissionRate
	}
	if req.CommissionDurationMonths != nil {
		affiliate.CommissionDurationMonths = *req.CommissionDurationMonths
	}
	if req.SubAffiliateRate != nil {
		affiliate.SubAffiliateRate = *req.SubAffiliateRate
	}
	if req.Status != nil {
		switch *req.Status {
		case domain.StatusActive, domain.StatusInactive:
			affiliate.Status = *req.Status
		default:
			return domain.Affiliate{}, domain.ErrInvalidStatus
		}
	}
	if err := validateTerms(affiliate.CommissionRate, affiliate.CommissionDurationMonths, affiliate.SubAffiliateRate); err != nil {
		return domain.Affiliate{}, err
	}

	affiliate.UpdatedAt = s.clock.Now()
	if err := s.repo.UpdateTerms(ctx, s.db, &affiliate); err != nil {
		return domain.Affiliate{}, err
	}
	return affiliate, nil
}

func (s *Service) Get(ctx context.Context, id string) (domain.Affiliate, error) {
	affiliateID, err := parseID(id)
	if err != nil {
		return domain.Affiliate{}, err
	}
	affiliate, err := s.repo.FindByID(ctx, s.db, affiliateID)
	if err != nil {
		return domain.Affiliate{}, err
	}
	if affiliate == nil {
		return domain.Affiliate{}, domain.ErrNotFound
	}
	return *affiliate, nil
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) (domain.ListResponse, error) {
	filter := domain.ListFilter{Status: domain.Status(strings.TrimSpace(req.Status))}
	if raw := strings.TrimSpace(req.ParentID); raw != "" {
		parentID, err := parseID(raw)
		if err != nil {
			return domain.ListResponse{}, err
		}
		filter.ParentID = &parentID
	}

	page := pagination.Pagination{PageToken: req.PageToken, PageSize: req.PageSize}
	items, err := s.repo.List(ctx, s.db, filter, page)
	if err != nil {
		return domain.ListResponse{}, err
	}
	items, pageInfo := pagination.Page(items, page.Limit(), func(a *domain.Affiliate) int64 { return a.ID.Int64() })

	affiliates := make([]domain.Affiliate, 0, len(items))
	for _, item := range items {
		affiliates = append(affiliates, *item)
	}
	return domain.ListResponse{PageInfo: pageInfo, Affiliates: affiliates}, nil
}

func (s *Service) SetPayoutMethod(ctx context.Context, affiliateID string, req domain.SetPayoutMethodRequest) (domain.PayoutMethod, error) {
	affiliate, err := s.Get(ctx, affiliateID)
	if err != nil {
		return domain.PayoutMethod{}, err
	}

	account := strings.TrimSpace(req.Account)
	switch req.Kind {
	case domain.PayoutMethodPayPal:
		normalized, err := normalizeEmail(account)
		if err != nil {
			return domain.PayoutMethod{}, domain.ErrInvalidPayoutMethod
		}
		account = normalized
	case domain.PayoutMethodManual:
		if account == "" {
			return domain.PayoutMethod{}, domain.ErrInvalidPayoutMethod
		}
	default:
		return domain.PayoutMethod{}, domain.ErrInvalidPayoutMethod
	}

	existing, err := s.repo.ListPayoutMethods(ctx, s.db, affiliate.ID)
	if err != nil {
		return domain.PayoutMethod{}, err
	}
	isPrimary := req.IsPrimary || len(existing) == 0 || (len(existing) == 1 && existing[0].Kind == req.Kind)

	method := domain.PayoutMethod{
		ID:          s.genID.Generate(),
		AffiliateID: affiliate.ID,
		Kind:        req.Kind,
		Account:     account,
		IsPrimary:   isPrimary,
		CreatedAt:   s.clock.Now(),
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.repo.UpsertPayoutMethod(ctx, tx, &method)
	})
	if err != nil {
		return domain.PayoutMethod{}, err
	}

	methods, err := s.repo.ListPayoutMethods(ctx, s.db, affiliate.ID)
	if err != nil {
		return domain.PayoutMethod{}, err
	}
	for _, m := range methods {
		if m.Kind == req.Kind {
			return m, nil
		}
	}
	return method, nil
}

func (s *Service) reserveSlug(ctx context.Context, raw, name string) (string, error) {
	slug, err := refslug.Normalize(raw, name)
	if err != nil {
		return "", domain.ErrInvalidSlug
	}

	taken, err := s.campaignRepo.SlugExists(ctx, s.db, slug)
	if err != nil {
		return "", err
	}
	if !taken {
		taken, err = s.repo.SlugExists(ctx, s.db, slug)
		if err != nil {
			return "", err
		}
	}
	if taken {
		return "", domain.ErrSlugTaken
	}
	return slug, nil
}

func (s *Service) ensureEmailAvailable(ctx context.Context, email string) error {
	existing, err := s.repo.FindByEmail(ctx, s.db, email)
	if err != nil {
		return err
	}
	if existing != nil {
		return domain.ErrEmailTaken
	}
	return nil
}

func (s *Service) insert(ctx context.Context, tx *gorm.DB, affiliate *domain.Affiliate) error {
	err := s.repo.Insert(ctx, tx, affiliate)
	if err == nil || !db.IsDuplicateKeyErr(err) {
		return err
	}

	existing, findErr := s.repo.FindByEmail(ctx, tx, affiliate.Email)
	if findErr == nil && existing != nil {
		return domain.ErrEmailTaken
	}
	return domain.ErrSlugTaken
}

func validateTerms(rate float64, duration int, subRate float64) error {
	if rate < 0 || rate > 100 || subRate < 0 || subRate > 100 {
		return domain.ErrInvalidRate
	}
	if duration < 1 || duration > maxDurationMonths {
		return domain.ErrInvalidDuration
	}
	return nil
}

func normalizeEmail(raw string) (string, error) {
	value := strings.ToLower(strings.TrimSpace(raw))
	if value == "" {
		return "", domain.ErrInvalidEmail
	}
	addr, err := mail.ParseAddress(value)
	if err != nil || addr.Address != value {
		return "", domain.ErrInvalidEmail
	}
	return value, nil
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}

func newInviteCode() (string, error) {
	buf := make([]byte, inviteCodeBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func valueOr[T any](value *T, fallback T) T {
	if value == nil {
		return fallback
	}
	return *value
}
