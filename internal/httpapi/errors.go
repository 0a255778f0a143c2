package httpapi

import (
	"net/http"

	"github.com/vladislavdragonenkov/shopcart/internal/domain"
)

// Коды ошибок в теле ответа.
const (
	codeNotFound        = "NOT_FOUND"
	codeInvalidArgument = "INVALID_ARGUMENT"
	codeConflict        = "CONFLICT"
	codeInternal        = "INTERNAL"
)

// errorStatus сопоставляет доменную ошибку HTTP-статусу и телу ответа.
// Текст внутренних ошибок наружу не отдаётся.
func errorStatus(err error) (int, errorResponse) {
	switch {
	case domain.IsNotFound(err):
		return http.StatusNotFound, errorResponse{Error: errorBody{Code: codeNotFound, Message: err.Error()}}
	case domain.IsInvalidInput(err):
		return http.StatusBadRequest, errorResponse{Error: errorBody{Code: codeInvalidArgument, Message: err.Error()}}
	case domain.IsConflict(err):
		return http.StatusConflict, errorResponse{Error: errorBody{Code: codeConflict, Message: err.Error()}}
	default:
		return http.StatusInternalServerError, errorResponse{Error: errorBody{Code: codeInternal, Message: "internal server error"}}
	}
}
