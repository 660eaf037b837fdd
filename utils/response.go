package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Envelope is the body of every API answer. Code 0 means success; failures carry a
// business code whose first three digits repeat the HTTP status.
type Envelope struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Pagination describes one window of a listing.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

// Page is the data payload of list endpoints.
type Page struct {
	Items      interface{} `json:"items"`
	Pagination Pagination  `json:"pagination"`
}

// NewPage wraps items with pagination metadata. pageSize must be positive.
func NewPage(items interface{}, page, pageSize int, total int64) Page {
	return Page{
		Items: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: int((total + int64(pageSize) - 1) / int64(pageSize)),
		},
	}
}

func write(ctx *gin.Context, status, code int, message string, data interface{}) {
	ctx.JSON(status, Envelope{Code: code, Message: message, Data: data})
}

func Success(ctx *gin.Context, data interface{}) {
	write(ctx, http.StatusOK, 0, "success", data)
}

// Created answers 201 with the new resource.
func Created(ctx *gin.Context, data interface{}) {
	write(ctx, http.StatusCreated, 0, "created", data)
}

// Error writes a failure envelope and aborts the handler chain.
func Error(ctx *gin.Context, status int, code int, message string) {
	write(ctx, status, code, message, nil)
	ctx.Abort()
}
