package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind 错误分类，决定对外暴露的语义（HTTP 状态码、批量结果中的原因）
type Kind string

const (
	KindNotConfigured Kind = "not_configured"
	KindValidation    Kind = "validation"
	KindInvalidToken  Kind = "invalid_token"
	KindExpiredToken  Kind = "expired_token"
	KindCapacity      Kind = "capacity"
	KindConflict      Kind = "conflict"
	KindUnauthorized  Kind = "unauthorized"
	KindInternal      Kind = "internal"
)

func (d Definition) Error() string {
	return d.Message
}

// Definition 表示业务错误码及默认信息。
type Definition struct {
	Code    string
	Message string
	Kind    Kind
}

// 签到策略相关错误。
var (
	AttendanceNotConfigured = Definition{Code: "ATTENDANCE_NOT_CONFIGURED", Message: "Attendance is not available for this event", Kind: KindNotConfigured}
	StrategyInvalid         = Definition{Code: "STRATEGY_INVALID", Message: "Attendance strategy invalid", Kind: KindValidation}
	StrategyLocked          = Definition{Code: "STRATEGY_LOCKED", Message: "Attendance strategy cannot change after attendance has begun", Kind: KindConflict}
	StrategyBusy            = Definition{Code: "STRATEGY_BUSY", Message: "Attendance strategy is being updated, retry shortly", Kind: KindConflict}
)

// 签到校验错误。
var (
	UnknownUnit               = Definition{Code: "UNKNOWN_UNIT", Message: "Unit key does not exist for this event", Kind: KindValidation}
	UnitKeyNotAllowed         = Definition{Code: "UNIT_KEY_NOT_ALLOWED", Message: "Unit key must be empty for single mark attendance", Kind: KindValidation}
	UnitKeyRequired           = Definition{Code: "UNIT_KEY_REQUIRED", Message: "Unit key is required for this attendance strategy", Kind: KindValidation}
	RegistrationNotFound      = Definition{Code: "REGISTRATION_NOT_FOUND", Message: "Registration not found", Kind: KindValidation}
	RegistrationNotInEvent    = Definition{Code: "REGISTRATION_NOT_IN_EVENT", Message: "Registration does not belong to this event", Kind: KindValidation}
	RegistrationInactive      = Definition{Code: "REGISTRATION_INACTIVE", Message: "Registration is cancelled", Kind: KindValidation}
	InvalidMarkStatus         = Definition{Code: "INVALID_MARK_STATUS", Message: "Mark status invalid", Kind: KindValidation}
	InvalidVerificationMethod = Definition{Code: "INVALID_VERIFICATION_METHOD", Message: "Verification method invalid", Kind: KindValidation}
	MarkedAtInFuture          = Definition{Code: "MARKED_AT_IN_FUTURE", Message: "Mark timestamp is too far in the future", Kind: KindValidation}
	BulkEmpty                 = Definition{Code: "BULK_EMPTY", Message: "No registrations to mark", Kind: KindValidation}
	BulkTooLarge              = Definition{Code: "BULK_TOO_LARGE", Message: "Too many registrations in one bulk mark", Kind: KindValidation}
	NotTeamMember             = Definition{Code: "NOT_TEAM_MEMBER", Message: "Registration is not on the scanned roster", Kind: KindValidation}
	MarkCancelled             = Definition{Code: "CANCELLED", Message: "Bulk mark interrupted before this item was processed", Kind: KindInternal}
	InvalidRequest            = Definition{Code: "INVALID_REQUEST", Message: "Invalid request", Kind: KindValidation}
)

// 身份凭证（二维码）错误。
var (
	IdentityTokenInvalid = Definition{Code: "IDENTITY_TOKEN_INVALID", Message: "Identity token invalid", Kind: KindInvalidToken}
	IdentityTokenExpired = Definition{Code: "IDENTITY_TOKEN_EXPIRED", Message: "Identity token expired", Kind: KindExpiredToken}
)

// 外部报名服务返回的容量错误，原样透传。
var (
	TeamFull = Definition{Code: "TEAM_FULL", Message: "Team is full", Kind: KindCapacity}
)

// 认证与通用错误。
var (
	Unauthorized    = Definition{Code: "UNAUTHORIZED", Message: "Unauthorized", Kind: KindUnauthorized}
	TooManyRequests = Definition{Code: "TOO_MANY_REQUESTS", Message: "Too many requests", Kind: KindConflict}

	ErrTokenGeneratorNotInitialized = Definition{Code: "TOKEN_GENERATOR_NOT_INITIALIZED", Message: "Token generator not initialized", Kind: KindInternal}
	ErrLedgerImmutable              = Definition{Code: "LEDGER_IMMUTABLE", Message: "Attendance marks are append-only", Kind: KindInternal}
)

// Lookup 提供错误码查询能力。
var Lookup = map[string]Definition{}

func init() {
	for _, def := range []Definition{
		AttendanceNotConfigured, StrategyInvalid, StrategyLocked, StrategyBusy,
		UnknownUnit, UnitKeyNotAllowed, UnitKeyRequired,
		RegistrationNotFound, RegistrationNotInEvent, RegistrationInactive,
		InvalidMarkStatus, InvalidVerificationMethod, MarkedAtInFuture,
		BulkEmpty, BulkTooLarge, NotTeamMember, MarkCancelled, InvalidRequest,
		IdentityTokenInvalid, IdentityTokenExpired,
		TeamFull,
		Unauthorized, TooManyRequests,
		ErrTokenGeneratorNotInitialized, ErrLedgerImmutable,
	} {
		Lookup[def.Code] = def
	}
}

// Get 根据错误码返回 Definition，若不存在则返回空 Definition。
func Get(code string) Definition {
	if def, ok := Lookup[code]; ok {
		return def
	}
	return Definition{Code: code, Message: "Unexpected error", Kind: KindInternal}
}

// Wrap 在保留错误码的前提下附加细节，errors.Is 仍然能匹配到 def
func Wrap(def Definition, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", def, fmt.Sprintf(format, args...))
}

// As 从错误链中取出 Definition
func As(err error) (Definition, bool) {
	var def Definition
	if stderrors.As(err, &def) {
		return def, true
	}
	var pdef *Definition
	if stderrors.As(err, &pdef) && pdef != nil {
		return *pdef, true
	}
	return Definition{}, false
}

// KindOf 返回错误分类，非业务错误一律视为 internal
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	if def, ok := As(err); ok && def.Kind != "" {
		return def.Kind
	}
	return KindInternal
}

func IsNotConfigured(err error) bool { return KindOf(err) == KindNotConfigured }

func IsValidation(err error) bool { return KindOf(err) == KindValidation }

// SkipMessageError 表示消息重复投递，消费者应直接 ack
type SkipMessageError struct {
	Reason string
}

func (e *SkipMessageError) Error() string {
	return e.Reason
}
