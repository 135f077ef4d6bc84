package models

import "time"

// Candidate is one restaurant listing returned by a place-search provider.
type Candidate struct {
	Name        string   `json:"name"`
	Types       []string `json:"types"`   // category tags
	Reviews     []string `json:"reviews"` // review texts
	Rating      float64  `json:"rating"`
	ReviewCount int      `json:"review_count"`
	PriceLevel  int      `json:"price_level"`
	Address     string   `json:"address"`
	PlaceID     string   `json:"place_id"`
	OpenNow     bool     `json:"open_now"`
	PhotoRef    string   `json:"photo_reference,omitempty"`
	PhotoURL    string   `json:"photo_url,omitempty"`
	Lat         *float64 `json:"lat,omitempty"`
	Lng         *float64 `json:"lng,omitempty"`
	Website     string   `json:"website,omitempty"`
	MapsURL     string   `json:"maps_url,omitempty"`
}

// RecommendationRecord is the write-once snapshot produced when a flow completes.
type RecommendationRecord struct {
	ID             string     `json:"id"`
	UserID         string     `json:"user_id"`
	UserName       string     `json:"user_name,omitempty"`
	RestaurantName string     `json:"restaurant_name"`
	Cuisine        string     `json:"cuisine"`
	Location       string     `json:"location"`
	Guests         int        `json:"guests"`
	BookingTime    *time.Time `json:"booking_time"`
	Dietary        string     `json:"dietary"`
	Atmosphere     string     `json:"atmosphere"`
	Budget         string     `json:"budget"`
	Rating         float64    `json:"rating"`
	ReviewCount    int        `json:"review_count"`
	PriceLevel     int        `json:"price_level"`
	Address        string     `json:"address"`
	PlaceID        string     `json:"place_id"`
	PhotoURL       string     `json:"photo_url,omitempty"`
	Website        string     `json:"website,omitempty"`
	MapsURL        string     `json:"maps_url,omitempty"`
	Score          float64    `json:"score"`
	CreatedAt      time.Time  `json:"created_at"`
}
