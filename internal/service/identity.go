package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"Attendly/internal/model"
	"Attendly/internal/repository"
	"Attendly/pkg/errors"
	"Attendly/pkg/logger"
	"Attendly/pkg/metrics"
	"Attendly/pkg/token"
)

// RosterMarkCommand 扫码后按名单勾选成员签到
type RosterMarkCommand struct {
	MarkedAt           *time.Time
	Token              string
	UnitKey            string
	MemberIDs          []int64
	Status             model.MarkStatus
	VerificationMethod model.VerificationMethod
	MarkedBy           string
	Notes              string
}

// IdentityService 二维码身份解析。解析本身只读，凭证可以反复扫描
type IdentityService struct {
	issuer        *token.IdentityIssuer
	strategies    *StrategyService
	marking       *MarkingService
	ledger        repository.Ledger
	registrations repository.RegistrationDirectory
}

func NewIdentityService(issuer *token.IdentityIssuer, strategies *StrategyService, marking *MarkingService,
	ledger repository.Ledger, registrations repository.RegistrationDirectory) *IdentityService {
	return &IdentityService{
		issuer:        issuer,
		strategies:    strategies,
		marking:       marking,
		ledger:        ledger,
		registrations: registrations,
	}
}

// Issue 为报名签发二维码载荷
func (s *IdentityService) Issue(ctx context.Context, registrationID int64) (*model.IssuedIdentity, error) {
	reg, err := s.registrations.Get(ctx, registrationID)
	if err != nil {
		return nil, err
	}
	if !reg.IsActive() {
		return nil, errors.Wrap(errors.RegistrationInactive, "registration %d", reg.ID)
	}

	signed, claims, err := s.issuer.Issue(reg.ID, reg.EventID)
	if err != nil {
		return nil, err
	}

	issued := &model.IssuedIdentity{
		RegistrationID: reg.ID,
		EventID:        reg.EventID,
		Token:          signed,
	}
	if claims.ExpiresAt != nil {
		exp := claims.ExpiresAt.Time.UTC()
		issued.ExpiresAt = &exp
	}
	return issued, nil
}

// Resolve 凭证 -> 报名 + 可签到名单，名单上带有该单元当前的最新状态
func (s *IdentityService) Resolve(ctx context.Context, tokenString, unitKey string) (*model.IdentityResolution, error) {
	res, _, err := s.resolve(ctx, tokenString, unitKey)
	metrics.GetMetrics().RecordIdentityResolve(ctx, resolveOutcome(err))
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *IdentityService) resolve(ctx context.Context, tokenString, unitKey string) (*model.IdentityResolution, *model.StrategyConfig, error) {
	claims, err := s.issuer.Parse(tokenString)
	if err != nil {
		return nil, nil, err
	}

	reg, err := s.registrations.Get(ctx, claims.RegistrationID)
	if err != nil {
		if errors.KindOf(err) == errors.KindInternal {
			return nil, nil, err
		}
		// 凭证指向不存在的报名，按无效凭证处理
		return nil, nil, errors.Wrap(errors.IdentityTokenInvalid, "registration %d: %v", claims.RegistrationID, err)
	}
	if reg.EventID != claims.EventID {
		return nil, nil, errors.Wrap(errors.IdentityTokenInvalid, "token event %d does not match registration event %d", claims.EventID, reg.EventID)
	}
	if !reg.IsActive() {
		return nil, nil, errors.Wrap(errors.RegistrationInactive, "registration %d", reg.ID)
	}

	cfg, err := s.strategies.Resolve(ctx, reg.EventID)
	if err != nil {
		return nil, nil, err
	}

	// 多单元策略未指定单元时只返回名单，不带状态
	withState := true
	if cfg.StrategyType.MultiUnit() && unitKey == "" {
		withState = false
	} else if err := cfg.CheckUnitKey(unitKey); err != nil {
		return nil, nil, err
	}

	members, err := s.roster(ctx, reg)
	if err != nil {
		return nil, nil, err
	}

	res := &model.IdentityResolution{
		Registration: *reg,
		UnitKey:      unitKey,
		TeamRoster:   make([]model.TeamMember, 0, len(members)),
	}
	for _, m := range members {
		member := model.TeamMember{Registration: m}
		if withState {
			latest, err := s.ledger.Latest(ctx, m.ID, unitKey)
			if err != nil {
				return nil, nil, err
			}
			member.LatestMark = latest
		}
		res.TeamRoster = append(res.TeamRoster, member)
	}
	return res, cfg, nil
}

// roster 个人报名只有自己；团队报名是同一 team_registration_id 下的全部有效成员
func (s *IdentityService) roster(ctx context.Context, reg *model.Registration) ([]model.Registration, error) {
	teamID := int64(0)
	switch {
	case reg.IsTeam():
		teamID = *reg.TeamRegistrationID
	case reg.RegistrationType == model.RegistrationTeamLeader:
		// 队长自身就是团队记录
		teamID = reg.ID
	default:
		return []model.Registration{*reg}, nil
	}

	members, err := s.registrations.ListTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}
	for _, m := range members {
		if m.ID == reg.ID {
			return members, nil
		}
	}
	return append([]model.Registration{*reg}, members...), nil
}

func resolveOutcome(err error) string {
	switch errors.KindOf(err) {
	case "":
		return "ok"
	case errors.KindInvalidToken:
		return "invalid"
	case errors.KindExpiredToken:
		return "expired"
	case errors.KindInternal:
		return "error"
	default:
		return "rejected"
	}
}

// MarkRoster 为扫码得到的名单中的成员批量签到；不在名单上的 ID 逐项失败
func (s *IdentityService) MarkRoster(ctx context.Context, cmd RosterMarkCommand) (*model.BulkMarkResult, error) {
	res, cfg, err := s.resolve(ctx, cmd.Token, cmd.UnitKey)
	metrics.GetMetrics().RecordIdentityResolve(ctx, resolveOutcome(err))
	if err != nil {
		return nil, err
	}
	if err := s.marking.checkBatch(res.Registration.EventID, len(cmd.MemberIDs)); err != nil {
		return nil, err
	}

	onRoster := make(map[int64]struct{}, len(res.TeamRoster))
	for _, m := range res.TeamRoster {
		onRoster[m.Registration.ID] = struct{}{}
	}

	method := cmd.VerificationMethod
	if method == "" {
		method = model.VerificationQR
	}

	// 名单内的成员交给批量签到，结果按原下标合并
	inner := &BulkMarkCommand{
		MarkedAt:           cmd.MarkedAt,
		EventID:            res.Registration.EventID,
		UnitKey:            cmd.UnitKey,
		Status:             cmd.Status,
		VerificationMethod: method,
		MarkedBy:           cmd.MarkedBy,
		Notes:              cmd.Notes,
	}
	positions := make([]int, 0, len(cmd.MemberIDs))
	errs := make([]error, len(cmd.MemberIDs))
	for i, id := range cmd.MemberIDs {
		if _, ok := onRoster[id]; !ok {
			errs[i] = errors.Wrap(errors.NotTeamMember, "registration %d", id)
			continue
		}
		inner.RegistrationIDs = append(inner.RegistrationIDs, id)
		positions = append(positions, i)
	}

	if len(positions) > 0 {
		for j, err := range s.marking.markEach(ctx, cfg, inner) {
			errs[positions[j]] = err
		}
	}

	all := *inner
	all.RegistrationIDs = cmd.MemberIDs
	result := s.marking.collect(ctx, &all, errs)

	logger.Logger.Info("Roster mark finished",
		zap.Int64("registration_id", res.Registration.ID),
		zap.Int("roster_size", len(res.TeamRoster)),
		zap.Int("requested", len(cmd.MemberIDs)),
	)
	return result, nil
}
