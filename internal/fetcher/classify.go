package fetcher

import (
	"errors"
	"fmt"
	"strings"
)

// Kind is the user-facing failure taxonomy
type Kind string

const (
	KindInvalidInput       Kind = "InvalidInputError"
	KindConfiguration      Kind = "ConfigurationError"
	KindLocalConfiguration Kind = "LocalConfigurationError"
	KindData               Kind = "DataError"
	KindServer             Kind = "ServerError"
	KindNetworkTimeout     Kind = "NetworkTimeoutError"
	KindStaleCache         Kind = "StaleCacheError"
	KindInvalidResult      Kind = "InvalidResultError"
	KindCacheMiss          Kind = "CacheMissError"
)

// NoStep marks errors raised before any progress sequence was started
const NoStep = -1

const (
	noResponseMessage = "server did not respond, check the network connection or retry later"
	timeoutMessage    = "request timed out, check the network connection or retry later"
	unknownMessage    = "unknown error"
)

// Terms that attribute a server complaint to the AI settings or to the
// instrument data. Matching is case-insensitive.
var (
	configurationTerms = []string{"API密钥", "配置", "api key", "api_key", "configur", "credential"}
	dataTerms          = []string{"股票", "数据", "stock", "symbol", "data"}
)

// ClassifiedError is a failure mapped onto the taxonomy and attributed to a
// step of the operation's progress sequence.
type ClassifiedError struct {
	Kind Kind
	// Message is the composed text shown to the user.
	Message string
	// Detail is the step-level text, Message without the operation prefix.
	Detail string
	Step   int
	Cause  error
}

func (e *ClassifiedError) Error() string {
	return e.Message
}

func (e *ClassifiedError) Unwrap() error {
	return e.Cause
}

// KindOf returns the Kind of the first ClassifiedError in err's chain, or ""
func KindOf(err error) Kind {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}

// NewPreflightError builds an error detected before any sequence was started
func NewPreflightError(op Op, kind Kind, detail string, cause error) *ClassifiedError {
	return &ClassifiedError{
		Kind:    kind,
		Message: op.Prefix + detail,
		Detail:  detail,
		Step:    NoStep,
		Cause:   cause,
	}
}

// Classify maps a failure raised while op was running onto the taxonomy.
// Errors that are already classified are returned unchanged.
func Classify(op Op, err error) *ClassifiedError {
	if err == nil {
		return nil
	}
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce
	}

	classify := func(kind Kind, step int, detail string) *ClassifiedError {
		return &ClassifiedError{
			Kind:    kind,
			Message: op.Prefix + detail,
			Detail:  detail,
			Step:    step,
			Cause:   err,
		}
	}

	var fe *FetchError
	if !errors.As(err, &fe) {
		return classify(KindLocalConfiguration, 0, err.Error())
	}

	switch {
	case fe.HasResponse():
		text := fe.Detail
		if text == "" {
			text = fe.ServerMessage
		}
		detail := responseDetail(op, fe)
		switch {
		case containsAny(text, configurationTerms):
			return classify(KindConfiguration, 0, detail)
		case containsAny(text, dataTerms):
			return classify(KindData, op.DataStep, detail)
		default:
			return classify(KindServer, op.RequestStep, detail)
		}
	case fe.Type == ErrorTypeValidation:
		return classify(KindInvalidResult, op.ReceiveStep, fe.Message)
	case fe.Type == ErrorTypeNetwork:
		return classify(KindNetworkTimeout, op.RequestStep, noResponseMessage)
	case fe.Type == ErrorTypeTimeout:
		return classify(KindNetworkTimeout, op.RequestStep, timeoutMessage)
	default:
		return classify(KindLocalConfiguration, 0, fe.Error())
	}
}

// responseDetail picks the most specific text of a server response
func responseDetail(op Op, fe *FetchError) string {
	if op.BareDetail {
		if fe.Detail != "" {
			return fe.Detail
		}
		if fe.Logic != "" {
			return fe.Logic
		}
	}
	msg := fe.Detail
	if msg == "" {
		msg = fe.ServerMessage
	}
	if msg == "" {
		msg = unknownMessage
	}
	return fmt.Sprintf("%d - %s", fe.StatusCode, msg)
}

func containsAny(s string, terms []string) bool {
	if s == "" {
		return false
	}
	lower := strings.ToLower(s)
	for _, t := range terms {
		if strings.Contains(lower, strings.ToLower(t)) {
			return true
		}
	}
	return false
}
