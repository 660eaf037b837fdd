package controllers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"github.com/threadboard/server/services"
	"github.com/threadboard/server/utils"
)

// parsePagination reads page and page_size, accepting limit and per_page as aliases used by the SPA.
func parsePagination(ctx *gin.Context) (int, int) {
	page := 1
	pageSize := 10
	if p, err := strconv.Atoi(ctx.Query("page")); err == nil && p > 0 {
		page = p
	}
	for _, key := range []string{"page_size", "limit", "per_page"} {
		if s, err := strconv.Atoi(ctx.Query(key)); err == nil && s > 0 && s <= 100 {
			pageSize = s
			break
		}
	}
	return page, pageSize
}

func paginated(items interface{}, page, pageSize int, total int64) utils.Page {
	return utils.NewPage(items, page, pageSize, total)
}

// paramID parses a positive numeric path parameter.
func paramID(ctx *gin.Context, name string) (uint, bool) {
	v, err := strconv.ParseUint(strings.TrimSpace(ctx.Param(name)), 10, 64)
	if err != nil || v == 0 {
		return 0, false
	}
	return uint(v), true
}

type errorMapping struct {
	target error
	status int
	code   int
}

var serviceErrors = []errorMapping{
	{services.ErrUnauthenticated, http.StatusUnauthorized, 40110},
	{services.ErrUserBanned, http.StatusForbidden, 40310},
	{services.ErrNotVerified, http.StatusForbidden, 40311},
	{services.ErrForbidden, http.StatusForbidden, 40312},
	{services.ErrPostNotFound, http.StatusNotFound, 40402},
	{services.ErrReplyNotFound, http.StatusNotFound, 40420},
	{services.ErrPathOutOfRange, http.StatusNotFound, 40421},
	{services.ErrPostNotPublished, http.StatusConflict, 40920},
	{services.ErrPostArchived, http.StatusConflict, 40921},
	{services.ErrEmptyContent, http.StatusBadRequest, 40023},
	{services.ErrDepthExceeded, http.StatusUnprocessableEntity, 42220},
}

// respondServiceError maps service sentinels to HTTP status and business code.
// Anything unrecognised is logged and answered with fallbackCode.
func respondServiceError(ctx *gin.Context, err error, fallbackCode int, fallbackMsg string) {
	for _, m := range serviceErrors {
		if errors.Is(err, m.target) {
			utils.Error(ctx, m.status, m.code, m.target.Error())
			return
		}
	}
	utils.Sugar.Errorw(fallbackMsg, "path", ctx.FullPath(), "error", err)
	utils.Error(ctx, http.StatusInternalServerError, fallbackCode, fallbackMsg)
}
