package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fatflowers/casperflow/internal/store"
	"github.com/fatflowers/casperflow/pkg/errs"
	"github.com/fatflowers/casperflow/pkg/logctx"
	"github.com/fatflowers/casperflow/pkg/response"
)

// ErrorData is the envelope payload of a failed request. Reason is the
// stable error code clients branch on.
type ErrorData struct {
	Error     string `json:"error"`
	Reason    string `json:"reason,omitempty"`
	Current   *int64 `json:"current,omitempty"`
	Requested *int64 `json:"requested,omitempty"`
}

var kindToCode = map[errs.Kind]response.APIResponseCode{
	errs.KindNotFound:            response.APIResponseCodeNotFound,
	errs.KindUnauthorized:        response.APIResponseCodeUnauthorized,
	errs.KindInvalidState:        response.APIResponseCodeInvalidState,
	errs.KindInvariantViolation:  response.APIResponseCodeInvariantViolation,
	errs.KindInvalidArgument:     response.APIResponseCodeBadRequest,
	errs.KindExternalFailure:     response.APIResponseCodeExternalFailure,
	errs.KindConfirmationTimeout: response.APIResponseCodeConfirmationTimeout,
}

// CodeOf maps a service error onto its envelope code.
func CodeOf(err error) response.APIResponseCode {
	if errors.Is(err, store.ErrNotFound) {
		return response.APIResponseCodeNotFound
	}
	if code, ok := kindToCode[errs.KindOf(err)]; ok {
		return code
	}
	return response.APIResponseCodeError
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusOK, response.ErrorT(response.APIResponseCodeBadRequest, ErrorData{Error: msg}))
}

// fail writes err in the standard envelope. Unclassified errors are logged
// since they never reach the client in detail.
func fail(c *gin.Context, log *zap.SugaredLogger, err error) {
	code := CodeOf(err)
	data := ErrorData{Error: err.Error()}
	if e, ok := errs.As(err); ok {
		data.Reason = e.Code
		data.Current = e.Current
		data.Requested = e.Requested
	}
	if code == response.APIResponseCodeError {
		logctx.FromGin(c, log).Errorw("request failed", "path", c.FullPath(), "err", err)
		data.Error = "internal error"
	}
	_ = c.Error(err)
	c.JSON(http.StatusOK, response.ErrorT(code, data))
}

func succeed[T any](c *gin.Context, data T) {
	c.JSON(http.StatusOK, response.OKT(data))
}
