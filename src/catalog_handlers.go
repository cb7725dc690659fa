package main

import (
	"ccr/src/config"
	"ccr/src/db"
	"ccr/src/inventory"
	"ccr/src/models"
	"ccr/src/pricing"
	"ccr/src/types"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

func parseQueryDate(value string) (time.Time, error) {
	return time.ParseInLocation(config.DATE_PARSE_FORMAT, value, time.UTC)
}

func catalogHandlers(g *gin.RouterGroup) *gin.RouterGroup {
	g.
		GET("/items", func(ctx *gin.Context) {
			var query struct {
				Kind types.ItemKind `form:"kind" binding:"omitempty,oneof=console game accessory"`
			}
			if err := ctx.BindQuery(&query); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			conn := db.GetDb()
			tx := conn.Where("active = ?", true)
			if query.Kind != "" {
				tx = tx.Where("kind = ?", query.Kind)
			}
			var items []models.Item
			if err := tx.Order("name ASC").Find(&items).Error; err != nil {
				ctx.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": items, "count": len(items)})
		}).
		GET("/items/:id", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.Status(http.StatusBadRequest)
				return
			}
			conn := db.GetDb()
			var item models.Item
			if err := conn.First(&item, params.ID).Error; err != nil {
				ctx.Status(http.StatusNotFound)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": item})
		}).
		GET("/availability", func(ctx *gin.Context) {
			var query types.AvailabilityQueryParams
			if err := ctx.BindQuery(&query); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			start, err := parseQueryDate(query.Start)
			if err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			end, err := parseQueryDate(query.End)
			if err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			qty := query.Qty
			if qty == 0 {
				qty = 1
			}
			av, err := inventory.CheckAvailability(db.GetDb(), query.ItemID, start, end, qty)
			if err != nil {
				ctx.JSON(errorStatus(err), gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": av})
		}).
		GET("/quote", func(ctx *gin.Context) {
			var query types.QuoteQueryParams
			if err := ctx.BindQuery(&query); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			start, err := parseQueryDate(query.Start)
			if err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			end, err := parseQueryDate(query.End)
			if err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			qty := query.Qty
			if qty == 0 {
				qty = 1
			}
			conn := db.GetDb()
			var item models.Item
			if err := conn.First(&item, query.ItemID).Error; err != nil {
				ctx.Status(http.StatusNotFound)
				return
			}
			quote, err := pricing.NewQuote([]models.Item{item}, []uint{qty}, query.RentalType, start, end, time.Now().UTC())
			if err != nil {
				ctx.JSON(errorStatus(err), gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": quote})
		})
	return g
}
