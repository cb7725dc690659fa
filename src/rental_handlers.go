package main

import (
	"ccr/src/config"
	"ccr/src/payments"
	"ccr/src/rentals"
	"ccr/src/types"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

func errorStatus(err error) int {
	switch {
	case errors.Is(err, types.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, types.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, types.ErrInvalidDateRange):
		return http.StatusBadRequest
	case errors.Is(err, types.ErrAvailabilityExceeded):
		return http.StatusConflict
	case errors.Is(err, types.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, types.ErrProviderError):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func rentalHandlers(g *gin.RouterGroup) *gin.RouterGroup {
	g.
		POST("/rentals", func(ctx *gin.Context) {
			userId := ctx.GetUint("id")
			var body types.CreateRentalRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			rental, err := rentals.CreateRental(userId, &body, time.Now().UTC())
			if err != nil {
				log.Printf("Error creating rental: %s\n", err.Error())
				ctx.JSON(errorStatus(err), gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusCreated, gin.H{"data": rental})
		}).
		GET("/rentals", func(ctx *gin.Context) {
			userId := ctx.GetUint("id")
			list, err := rentals.ListRentals(userId)
			if err != nil {
				ctx.JSON(errorStatus(err), gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": list, "count": len(list)})
		}).
		GET("/rentals/:id", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.Status(http.StatusBadRequest)
				return
			}
			rental, err := rentals.GetRental(params.ID)
			if err != nil {
				ctx.JSON(errorStatus(err), gin.H{"error": err.Error()})
				return
			}
			if rental.UserID != ctx.GetUint("id") && ctx.GetString("role") != "admin" {
				ctx.Status(http.StatusNotFound)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": rental})
		}).
		PUT("/rentals/:id/cancel", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.Status(http.StatusBadRequest)
				return
			}
			rental, err := rentals.Cancel(params.ID)
			if err != nil {
				log.Printf("Error cancelling rental %d: %s\n", params.ID, err.Error())
				ctx.JSON(errorStatus(err), gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": rental})
		}).
		PUT("/rentals/:id/activate", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.Status(http.StatusBadRequest)
				return
			}
			rental, err := rentals.Activate(params.ID, time.Now().UTC())
			if err != nil {
				log.Printf("Error activating rental %d: %s\n", params.ID, err.Error())
				ctx.JSON(errorStatus(err), gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": rental})
		}).
		PUT("/rentals/:id/return", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.Status(http.StatusBadRequest)
				return
			}
			var body types.ReturnRentalRequestBody
			if ctx.Request.ContentLength > 0 {
				if err := ctx.ShouldBindJSON(&body); err != nil {
					ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
					return
				}
			}
			returnDate := time.Now().UTC()
			if body.ReturnDate != "" {
				parsed, err := time.ParseInLocation(config.DATE_PARSE_FORMAT, body.ReturnDate, time.UTC)
				if err != nil {
					ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
					return
				}
				returnDate = parsed
			}
			rental, err := rentals.Return(params.ID, returnDate)
			if err != nil {
				log.Printf("Error returning rental %d: %s\n", params.ID, err.Error())
				ctx.JSON(errorStatus(err), gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": rental})
		}).
		POST("/rentals/:id/checkout", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.Status(http.StatusBadRequest)
				return
			}
			var body types.CheckoutRequestBody
			if ctx.Request.ContentLength > 0 {
				if err := ctx.ShouldBindJSON(&body); err != nil {
					ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
					return
				}
			}
			paymentType := body.PaymentType
			if paymentType == "" {
				paymentType = types.PAYMENT_TYPE_RENTAL
			}
			session, err := payments.OpenCheckout(params.ID, paymentType, time.Now().UTC())
			if err != nil {
				log.Printf("Error opening checkout for rental %d: %s\n", params.ID, err.Error())
				ctx.JSON(errorStatus(err), gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusCreated, gin.H{"data": session, "url": session.CheckoutURL})
		}).
		POST("/rentals/:id/refund-deposit", func(ctx *gin.Context) {
			if ctx.GetString("role") != "admin" {
				ctx.Status(http.StatusForbidden)
				return
			}
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.Status(http.StatusBadRequest)
				return
			}
			refundId, err := payments.RefundDeposit(params.ID)
			if err != nil {
				log.Printf("Error refunding deposit for rental %d: %s\n", params.ID, err.Error())
				ctx.JSON(errorStatus(err), gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusAccepted, gin.H{"refund_id": refundId})
		}).
		GET("/rentals/:id/payments", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.Status(http.StatusBadRequest)
				return
			}
			sessions, err := payments.ListSessions(params.ID)
			if err != nil {
				ctx.JSON(errorStatus(err), gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": sessions, "count": len(sessions)})
		})
	return g
}
