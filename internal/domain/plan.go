package domain

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"time"
)

// Plan is one candidate record returned by the plan-lookup service.
type Plan struct {
	Telecom  string `json:"telecom"`
	PlanName string `json:"planName"`
	Price    string `json:"price"`
	Voice    string `json:"voice"`
	Data     string `json:"data"`
	SMS      string `json:"sms"`
}

// PriceValue parses Price. Malformed prices sort after every valid one.
func (p Plan) PriceValue() int {
	n, err := strconv.Atoi(strings.TrimSpace(p.Price))
	if err != nil {
		return math.MaxInt
	}
	return n
}

// ErrPlanNotFound means no candidate plan matched the configured provider.
var ErrPlanNotFound = errors.New("no plan found for provider")

// Recommendation is the plan selected for a completed slot set.
type Recommendation struct {
	PlanName   string    `json:"planName"`
	Data       string    `json:"data"`
	Voice      string    `json:"voice"`
	SMS        string    `json:"sms"`
	Telecom    string    `json:"telecom"`
	Price      int       `json:"price"`
	ResolvedAt time.Time `json:"-"`
}

// RecommendationFrom snapshots p.
func RecommendationFrom(p Plan) Recommendation {
	return Recommendation{
		PlanName:   p.PlanName,
		Data:       p.Data,
		Voice:      p.Voice,
		SMS:        p.SMS,
		Telecom:    p.Telecom,
		Price:      p.PriceValue(),
		ResolvedAt: time.Now(),
	}
}

// Summary is the title/content artifact built from a recommendation.
type Summary struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Template is a persisted summary.
type Template struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"-"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	PlanName  string    `json:"planName"`
	CreatedAt time.Time `json:"createdAt"`
}
