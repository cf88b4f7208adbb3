package services

import (
	"regexp"
	"strconv"
)

// DefaultRating is used when the model's answer carries no usable digit.
const DefaultRating = 3

var ratingDigit = regexp.MustCompile(`\b[1-5]\b`)

// ExtractRating returns the first standalone digit 1-5 in text, or DefaultRating.
func ExtractRating(text string) int {
	m := ratingDigit.FindString(text)
	if m == "" {
		return DefaultRating
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return DefaultRating
	}
	return n
}
