package contracts

import "fmt"

// ErrorReply is a Reply carrying a failure instead of a result.
type ErrorReply struct {
	BaseReply
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

// NewErrorReply builds a failed reply correlated to correlationID.
func NewErrorReply(correlationID, errorCode, errorMessage string) *ErrorReply {
	reply := &ErrorReply{
		BaseReply:    BaseReply{BaseMessage: NewBaseMessage("Reply"), Success: false},
		ErrorCode:    errorCode,
		ErrorMessage: errorMessage,
	}
	reply.SetCorrelationID(correlationID)
	return reply
}

func (e ErrorReply) IsSuccess() bool { return false }
func (e ErrorReply) GetError() error { return fmt.Errorf("%s: %s", e.ErrorCode, e.ErrorMessage) }
