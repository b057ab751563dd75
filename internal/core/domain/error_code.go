package domain

import "strings"

// ErrorCode is the bit set reported when the device halts.
type ErrorCode uint32

const (
	NoError                 ErrorCode = 0
	ErrCodeFpsNoMatch       ErrorCode = 1 << 0
	ErrCodeInvalidRequest   ErrorCode = 1 << 1
	ErrCodeInvalidSignData  ErrorCode = 1 << 2
	ErrCodeSignFail         ErrorCode = 1 << 3
	ErrCodeTooManySignature ErrorCode = 1 << 4
	ErrCodeInitFps          ErrorCode = 1 << 5
	ErrCodeInitNfc          ErrorCode = 1 << 6
	ErrCodeInitCrypto       ErrorCode = 1 << 7
	ErrCodeInitKey          ErrorCode = 1 << 8
	ErrCodeInitPwrmgmt      ErrorCode = 1 << 9
	ErrCodeInitUart         ErrorCode = 1 << 10
	ErrCodeInitTimer        ErrorCode = 1 << 11
	ErrCodeInitLed          ErrorCode = 1 << 12
	ErrCodeAuthFailed       ErrorCode = 1 << 13
	ErrCodeSchedError       ErrorCode = 1 << 14
	ErrCodeStorage          ErrorCode = 1 << 15
	ErrCodeUnknown          ErrorCode = 1 << 31
)

var errorCodeNames = []struct {
	code ErrorCode
	name string
}{
	{ErrCodeFpsNoMatch, "fps_no_match"},
	{ErrCodeInvalidRequest, "invalid_request"},
	{ErrCodeInvalidSignData, "invalid_sign_data"},
	{ErrCodeSignFail, "sign_fail"},
	{ErrCodeTooManySignature, "too_many_signatures"},
	{ErrCodeInitFps, "init_fps"},
	{ErrCodeInitNfc, "init_nfc"},
	{ErrCodeInitCrypto, "init_crypto"},
	{ErrCodeInitKey, "init_key"},
	{ErrCodeInitPwrmgmt, "init_pwrmgmt"},
	{ErrCodeInitUart, "init_uart"},
	{ErrCodeInitTimer, "init_timer"},
	{ErrCodeInitLed, "init_led"},
	{ErrCodeAuthFailed, "auth_failed"},
	{ErrCodeSchedError, "sched_error"},
	{ErrCodeStorage, "storage"},
	{ErrCodeUnknown, "unknown"},
}

func (c ErrorCode) String() string {
	if c == NoError {
		return "no_error"
	}
	names := make([]string, 0)
	for _, e := range errorCodeNames {
		if c&e.code != 0 {
			names = append(names, e.name)
		}
	}
	if len(names) == 0 {
		return "unknown"
	}
	return strings.Join(names, "|")
}
