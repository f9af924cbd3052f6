package httpx

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/rotasales/rotasales/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	var verrs validator.ValidationErrors
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrAlreadyExists):
		Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, shared.ErrValidation), errors.As(err, &verrs):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrInvalidState):
		Problem(w, http.StatusConflict, "Invalid State", err.Error())
	case errors.Is(err, shared.ErrForbidden):
		Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, shared.ErrInvalidCredentials):
		Problem(w, http.StatusUnauthorized, "Unauthorized", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
