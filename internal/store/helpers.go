package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/BTreeMap/Recommendy/internal/models"
)

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// recommendationColumns lists the columns read and written for a record, in order.
const recommendationColumns = `id, user_id, user_name, restaurant_name, cuisine, location, guests, booking_time,
	dietary, atmosphere, budget, rating, review_count, price_level, address, place_id,
	photo_url, website, maps_url, score, created_at`

// recommendationArgs returns the insert arguments matching recommendationColumns.
func recommendationArgs(r models.RecommendationRecord) []interface{} {
	var booking interface{}
	if r.BookingTime != nil {
		booking = *r.BookingTime
	}
	return []interface{}{
		r.ID, r.UserID, nilIfEmpty(r.UserName), r.RestaurantName, nilIfEmpty(r.Cuisine), nilIfEmpty(r.Location),
		r.Guests, booking, nilIfEmpty(r.Dietary), nilIfEmpty(r.Atmosphere), nilIfEmpty(r.Budget),
		r.Rating, r.ReviewCount, r.PriceLevel, nilIfEmpty(r.Address), nilIfEmpty(r.PlaceID),
		nilIfEmpty(r.PhotoURL), nilIfEmpty(r.Website), nilIfEmpty(r.MapsURL), r.Score, r.CreatedAt,
	}
}

// scanRecommendation scans a RecommendationRecord from sql.Rows.
func scanRecommendation(rows *sql.Rows) (models.RecommendationRecord, error) {
	var r models.RecommendationRecord
	var userName, cuisine, location, dietary, atmosphere, budget sql.NullString
	var address, placeID, photoURL, website, mapsURL sql.NullString
	var booking sql.NullTime
	err := rows.Scan(
		&r.ID, &r.UserID, &userName, &r.RestaurantName, &cuisine, &location, &r.Guests, &booking,
		&dietary, &atmosphere, &budget, &r.Rating, &r.ReviewCount, &r.PriceLevel, &address, &placeID,
		&photoURL, &website, &mapsURL, &r.Score, &r.CreatedAt,
	)
	if err != nil {
		return r, fmt.Errorf("scan recommendation failed: %w", err)
	}
	r.UserName = userName.String
	r.Cuisine = cuisine.String
	r.Location = location.String
	r.Dietary = dietary.String
	r.Atmosphere = atmosphere.String
	r.Budget = budget.String
	r.Address = address.String
	r.PlaceID = placeID.String
	r.PhotoURL = photoURL.String
	r.Website = website.String
	r.MapsURL = mapsURL.String
	if booking.Valid {
		t := booking.Time
		r.BookingTime = &t
	}
	return r, nil
}

// collectRecommendations drains rows into a slice.
func collectRecommendations(rows *sql.Rows) ([]models.RecommendationRecord, error) {
	defer rows.Close()
	var out []models.RecommendationRecord
	for rows.Next() {
		r, err := scanRecommendation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recommendation rows: %w", err)
	}
	return out, nil
}

// decodeSession unmarshals a stored session blob.
func decodeSession(userID string, data []byte) (*models.DialogueSession, error) {
	var session models.DialogueSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("decode session for %s: %w", userID, err)
	}
	if session.UserID == "" {
		session.UserID = userID
	}
	return &session, nil
}
