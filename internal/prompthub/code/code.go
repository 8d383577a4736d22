// Package code registers the stable business error codes of the API
// contract. The numeric values are the contract and must not change.
package code

import (
	"net/http"

	"github.com/prompthub/prompthub/pkg/errorx"
)

const (
	// ErrAuthentication - 401: Missing or unknown API key.
	ErrAuthentication = 40100

	// ErrPermissionDenied - 403: Cross-project reference to a non-shared prompt.
	ErrPermissionDenied = 40300

	// ErrNotFound - 404: Prompt, scene, project or version not found.
	ErrNotFound = 40400

	// ErrConflict - 409: Duplicate slug or similar uniqueness violation.
	ErrConflict = 40900

	// ErrCircularDependency - 409: Cycle detected in the reference graph.
	ErrCircularDependency = 40901

	// ErrValidation - 422: Malformed request body or variable spec.
	ErrValidation = 42200

	// ErrTemplateRender - 422: Any renderer failure.
	ErrTemplateRender = 42201

	// ErrInternal - 500: Unexpected failure, logged with a correlation id.
	ErrInternal = 50000

	// ErrDeadlineExceeded - 504: Request deadline hit during a resolve.
	ErrDeadlineExceeded = 50400
)

func init() {
	errorx.MustRegister(errorx.NewCoder(ErrAuthentication, http.StatusUnauthorized, "Authentication required"))
	errorx.MustRegister(errorx.NewCoder(ErrPermissionDenied, http.StatusForbidden, "Permission denied"))
	errorx.MustRegister(errorx.NewCoder(ErrNotFound, http.StatusNotFound, "Resource not found"))
	errorx.MustRegister(errorx.NewCoder(ErrConflict, http.StatusConflict, "Resource conflict"))
	errorx.MustRegister(errorx.NewCoder(ErrCircularDependency, http.StatusConflict, "Circular dependency detected"))
	errorx.MustRegister(errorx.NewCoder(ErrValidation, http.StatusUnprocessableEntity, "Validation failed"))
	errorx.MustRegister(errorx.NewCoder(ErrTemplateRender, http.StatusUnprocessableEntity, "Template render failed"))
	errorx.MustRegister(errorx.NewCoder(ErrInternal, http.StatusInternalServerError, "Internal server error"))
	errorx.MustRegister(errorx.NewCoder(ErrDeadlineExceeded, http.StatusGatewayTimeout, "Request deadline exceeded"))
}
