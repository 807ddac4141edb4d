package admin

import (
	"errors"

	"github.com/coopledger/internal/authz"
	handlershared "github.com/coopledger/internal/http/handlers/shared"
	"github.com/coopledger/internal/http/response"

	"github.com/gin-gonic/gin"
)

func respondErrorWithMsg(c *gin.Context, code int, msg string, err error) {
	handlershared.RespondErrorWithMsg(c, code, msg, err)
}

// respondAuthzError 授权管理错误：输入类错误回显原因，其余按 500 记录
func respondAuthzError(c *gin.Context, fallback string, err error) {
	switch {
	case errors.Is(err, authz.ErrUnknownRole), errors.Is(err, authz.ErrActionRequired):
		respondErrorWithMsg(c, response.CodeBadRequest, err.Error(), nil)
	case errors.Is(err, authz.ErrProtectedPolicy):
		respondErrorWithMsg(c, response.CodeConflict, err.Error(), nil)
	case errors.Is(err, authz.ErrUnavailable):
		respondErrorWithMsg(c, response.CodeServiceUnavailable, err.Error(), nil)
	default:
		respondErrorWithMsg(c, response.CodeInternal, fallback, err)
	}
}
