// Package gin binds the payee engine to the Gin framework. It is a thin
// shim: every decision is made by payee.Handler, this file only translates
// it to gin's request/response surface.
package gin

import (
	"github.com/gin-gonic/gin"

	"github.com/megalith-labs/x402-go/payee"
	"github.com/megalith-labs/x402-go/types"
)

// SettlementKey is the gin context key under which the encoded settlement
// header is stored for downstream handlers.
const SettlementKey = "x402_settlement"

// Middleware returns a gin middleware driving the payee state machine.
func Middleware(h *payee.Handler) gin.HandlerFunc {
	return func(c *gin.Context) {
		d := h.Evaluate(c.Request.Context(), c.Request.URL.Path, c.GetHeader(types.PaymentHeader))
		switch d.Verdict {
		case payee.VerdictPass:
			c.Next()
		case payee.VerdictProceed:
			c.Header(types.PaymentResponseHeader, d.SettlementHeader)
			c.Set(SettlementKey, d.SettlementHeader)
			c.Next()
		case payee.VerdictReject:
			if d.Body != nil {
				c.AbortWithStatusJSON(d.Status, d.Body)
				return
			}
			c.String(d.Status, d.Message)
			c.Abort()
		}
	}
}
