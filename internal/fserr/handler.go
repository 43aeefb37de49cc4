package fserr

import (
	"errors"
	"fmt"
	"strings"

	"github.com/deppfellow/cluster-reviewer/internal/errs"
	"github.com/deppfellow/cluster-reviewer/internal/timeseries"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// generateErrorCode creates consistent application error codes.
//
// Output format:
//
//	<ENTITY>_<ACTION>
//
// Example:
//
//	cluster + NotExist => CLUSTER_NOT_FOUND
func generateErrorCode(entity string, code Code) string {
	if entity == "" {
		entity = "FILE"
	}

	domain := strings.ToUpper(strings.ReplaceAll(entity, " ", "_"))

	action := "ERROR"
	switch code {
	case NotExist:
		action = "NOT_FOUND"
	case Exist:
		action = "ALREADY_EXISTS"
	case Permission:
		action = "FORBIDDEN"
	case InvalidName:
		action = "INVALID_NAME"
	case Disabled:
		action = "DISABLED"
	}

	return fmt.Sprintf("%s_%s", domain, action)
}

// humanizeText converts snake_case into Title Case: "quick_description" -> "Quick Description".
func humanizeText(text string) string {
	if text == "" {
		return ""
	}
	return cases.Title(language.English).String(strings.ReplaceAll(text, "_", " "))
}

func formatUserFriendlyMessage(fe *Error) string {
	entity := humanizeText(fe.Entity)
	if entity == "" {
		entity = "File"
	}

	name := ""
	if fe.Name != "" {
		name = fmt.Sprintf(" %q", fe.Name)
	}

	switch fe.Code {
	case NotExist:
		return fmt.Sprintf("%s%s not found", entity, name)
	case Exist:
		return fmt.Sprintf("%s%s already exists", entity, name)
	case Permission:
		return fmt.Sprintf("Permission denied on %s%s", strings.ToLower(entity), name)
	case InvalidName:
		return fmt.Sprintf("Invalid %s name%s", strings.ToLower(entity), name)
	case Disabled:
		return fmt.Sprintf("%s is disabled in the settings", entity)
	default:
		return "An error occurred while processing your request"
	}
}

// HandleError converts a low-level error into an application-level error.
//
// Output:
//   - If already *errs.HTTPError: returned unchanged
//   - Malformed image filename: 400
//   - Sensor reload already running: 409
//   - *fserr.Error or a bare fs error: 404/409/403/400 by Code
//   - Otherwise: 500
func HandleError(err error) error {
	var httpErr *errs.HTTPError
	if errors.As(err, &httpErr) {
		return err
	}

	if errors.Is(err, timeseries.ErrMalformedFilename) {
		code := "MALFORMED_FILENAME"
		msg := err.Error()
		var fnErr *timeseries.FilenameError
		if errors.As(err, &fnErr) {
			msg = fmt.Sprintf("Cannot read a timestamp from %q: %s", fnErr.Name, fnErr.Reason)
		}
		return errs.NewBadRequestError(msg, true, &code, nil, nil)
	}

	if errors.Is(err, timeseries.ErrReloadInProgress) {
		return errs.NewConflictError("A sensor reload is already running", true)
	}

	fe := &Error{Code: ErrCode(err)}
	errors.As(err, &fe)

	errorCode := generateErrorCode(fe.Entity, fe.Code)
	userMessage := formatUserFriendlyMessage(fe)

	switch fe.Code {
	case NotExist:
		return errs.NewNotFoundError(userMessage, true, &errorCode)

	case Exist:
		conflict := errs.NewConflictError(userMessage, true)
		conflict.Code = errorCode
		return conflict

	case Permission:
		forbidden := errs.NewForbiddenError(userMessage, true)
		forbidden.Code = errorCode
		return forbidden

	case InvalidName:
		fieldErrors := []errs.FieldError{{Field: strings.ToLower(fe.Entity), Error: "is not a valid name"}}
		return errs.NewBadRequestError(userMessage, true, &errorCode, fieldErrors, nil)

	case Disabled:
		return errs.NewBadRequestError(userMessage, true, &errorCode, nil, &errs.Action{
			Type:    errs.ActionTypeRedirect,
			Message: "Enable it on the settings page",
			Value:   "/settings",
		})

	default:
		return errs.NewInternalServerError()
	}
}
