package main

import (
	"ccr/src/db"
	"ccr/src/models"
	"ccr/src/types"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

func reviewHandlers(g *gin.RouterGroup) *gin.RouterGroup {
	g.
		POST("/reviews", func(ctx *gin.Context) {
			userId := ctx.GetUint("id")
			var body types.CreateReviewRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			conn := db.GetDb()
			var review models.Review
			err := conn.Transaction(func(tx *gorm.DB) error {
				var rental models.Rental
				if err := tx.Preload("Items").First(&rental, body.RentalID).Error; err != nil {
					return err
				}
				if rental.UserID != userId {
					return gorm.ErrRecordNotFound
				}
				// Only completed rentals are reviewable.
				if rental.Status != types.RENTAL_RETURNED {
					return types.ErrInvalidTransition
				}
				var itemId uint
				if len(rental.Items) > 0 {
					itemId = rental.Items[0].ItemID
				}
				review = models.Review{
					RentalID: rental.ID,
					UserID:   userId,
					ItemID:   itemId,
					Rating:   body.Rating,
					Comment:  body.Comment,
				}
				return tx.Create(&review).Error
			})
			if err != nil {
				log.Printf("Error creating review: %s\n", err.Error())
				ctx.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusCreated, gin.H{"data": review})
		}).
		GET("/items/:id/reviews", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.Status(http.StatusBadRequest)
				return
			}
			conn := db.GetDb()
			var reviews []models.Review
			err := conn.
				Where("item_id = ?", params.ID).
				Order("created_at DESC").
				Find(&reviews).
				Error
			if err != nil {
				ctx.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": reviews, "count": len(reviews)})
		})
	return g
}
