package main

import (
	"bytes"
	"ccr/src/config"
	"ccr/src/db"
	"ccr/src/models"
	"ccr/src/types"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"github.com/tidwall/gjson"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type TestSuite struct {
	suite.Suite
	DB     *gorm.DB
	Router *gin.Engine
	Item   models.Item
}

func testAuthMiddleware(ctx *gin.Context) {
	ctx.Set("id", uint(1))
	ctx.Set("email", "renter@example.com")
	ctx.Set("role", "customer")
}

func (s *TestSuite) SetupSuite() {
	gin.SetMode(gin.TestMode)
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterValidation("rentaldate", rentalDateValidatorFunc)
	}

	conn, err := gorm.Open(sqlite.Open("file:mainsuite?mode=memory&cache=shared"), &gorm.Config{})
	s.Require().NoError(err)
	sqlDB, err := conn.DB()
	s.Require().NoError(err)
	sqlDB.SetMaxOpenConns(1)
	err = conn.AutoMigrate(
		&models.User{},
		&models.Item{},
		&models.Rental{},
		&models.RentalItem{},
		&models.ReservationWindow{},
		&models.CheckoutSession{},
		&models.WebhookEvent{},
		&models.Review{},
	)
	if err != nil {
		log.Fatalf("error migration: %s", err.Error())
	}
	db.NewDB(conn)
	s.DB = conn

	user := models.User{Email: "renter@example.com", Name: "Renter"}
	s.Require().NoError(conn.Create(&user).Error)
	item := models.Item{Name: "PS5 Console", Kind: types.ITEM_CONSOLE, DailyPrice: 500, SecurityDeposit: 2000, StockQuantity: 2, Active: true}
	s.Require().NoError(conn.Create(&item).Error)
	s.Item = item

	router := setupRouter()
	publicRoutes(router)
	authorized := router.Group(apiPrefix)
	authorized.Use(testAuthMiddleware)
	{
		rentalHandlers(authorized)
		reviewHandlers(authorized)
	}
	s.Router = router
}

func (s *TestSuite) request(method, path string, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Router.ServeHTTP(w, req)
	return w
}

func futureDate(days int) string {
	return time.Now().UTC().AddDate(0, 0, days).Format(config.DATE_PARSE_FORMAT)
}

func (s *TestSuite) TestListItems() {
	w := s.request(http.MethodGet, apiPrefix+"/items", nil)
	s.Equal(http.StatusOK, w.Code)
	body := w.Body.String()
	s.EqualValues(1, gjson.Get(body, "count").Int())
	s.Equal("PS5 Console", gjson.Get(body, "data.0.name").String())
	s.Equal("ps5-console", gjson.Get(body, "data.0.slug").String())
}

func (s *TestSuite) TestAvailabilityEndpoint() {
	path := fmt.Sprintf("%s/availability?item=%d&start=%s&end=%s&qty=2", apiPrefix, s.Item.ID, futureDate(30), futureDate(34))
	w := s.request(http.MethodGet, path, nil)
	s.Equal(http.StatusOK, w.Code)
	body := w.Body.String()
	s.True(gjson.Get(body, "data.available").Bool())
	s.EqualValues(2, gjson.Get(body, "data.free").Int())
}

func (s *TestSuite) TestQuoteEndpoint() {
	path := fmt.Sprintf("%s/quote?item=%d&type=daily&start=%s&end=%s", apiPrefix, s.Item.ID, futureDate(30), futureDate(34))
	w := s.request(http.MethodGet, path, nil)
	s.Equal(http.StatusOK, w.Code)
	body := w.Body.String()
	s.EqualValues(5, gjson.Get(body, "data.duration_days").Int())
	s.EqualValues(2500, gjson.Get(body, "data.total_price").Int())
	s.EqualValues(2000, gjson.Get(body, "data.security_deposit").Int())
}

func (s *TestSuite) TestCreateRentalLifecycle() {
	w := s.request(http.MethodPost, apiPrefix+"/rentals", types.CreateRentalRequestBody{
		Items:      []types.RentalLineItem{{ItemID: s.Item.ID, Qty: 1}},
		RentalType: types.RENTAL_TYPE_DAILY,
		StartDate:  futureDate(10),
		EndDate:    futureDate(14),
	})
	s.Require().Equal(http.StatusCreated, w.Code)
	body := w.Body.String()
	rentalId := gjson.Get(body, "data.id").Uint()
	s.Equal("pending", gjson.Get(body, "data.status").String())
	s.EqualValues(2500, gjson.Get(body, "data.total_price").Int())

	w = s.request(http.MethodGet, fmt.Sprintf("%s/rentals/%d", apiPrefix, rentalId), nil)
	s.Equal(http.StatusOK, w.Code)

	// Cancelling a pending rental frees its claim.
	w = s.request(http.MethodPut, fmt.Sprintf("%s/rentals/%d/cancel", apiPrefix, rentalId), nil)
	s.Equal(http.StatusOK, w.Code)
	s.Equal("cancelled", gjson.Get(w.Body.String(), "data.status").String())

	// Terminal states are sticky.
	w = s.request(http.MethodPut, fmt.Sprintf("%s/rentals/%d/cancel", apiPrefix, rentalId), nil)
	s.Equal(http.StatusConflict, w.Code)
}

func (s *TestSuite) TestCreateRentalRejectsPastDates() {
	w := s.request(http.MethodPost, apiPrefix+"/rentals", types.CreateRentalRequestBody{
		Items:      []types.RentalLineItem{{ItemID: s.Item.ID, Qty: 1}},
		RentalType: types.RENTAL_TYPE_DAILY,
		StartDate:  "2020-01-01",
		EndDate:    "2020-01-05",
	})
	s.Equal(http.StatusBadRequest, w.Code)
}

func (s *TestSuite) TestRefundDepositRequiresAdmin() {
	w := s.request(http.MethodPost, apiPrefix+"/rentals/1/refund-deposit", nil)
	s.Equal(http.StatusForbidden, w.Code)
}

func TestMainSuite(t *testing.T) {
	suite.Run(t, new(TestSuite))
}

func TestRentalDateValidator(t *testing.T) {
	type probe struct {
		Date string `binding:"required,rentaldate"`
	}
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterValidation("rentaldate", rentalDateValidatorFunc)
		assert.Error(t, v.Struct(probe{Date: "2020-01-01"}))
		assert.Error(t, v.Struct(probe{Date: "not-a-date"}))
		assert.NoError(t, v.Struct(probe{Date: time.Now().UTC().AddDate(0, 0, 1).Format(config.DATE_PARSE_FORMAT)}))
	}
}
