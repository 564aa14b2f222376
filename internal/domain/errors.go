package domain

import "errors"

var (
	// ErrNotFound indicates the requested entity was not found.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateOrderID surfaces the orders.public_id unique-constraint
	// violation, the backstop for the non-atomic id probe.
	ErrDuplicateOrderID = errors.New("duplicate order id")

	// ErrRetriesExhausted is returned after a capped backoff loop gives up.
	ErrRetriesExhausted = errors.New("retries exhausted")

	// ErrUnknownEnumValue rejects ledger rows outside the closed enumerations.
	ErrUnknownEnumValue = errors.New("unknown enum value")

	// ErrPromotionExpired rejects checkout with an expired promotion code.
	ErrPromotionExpired = errors.New("promotion expired")

	// ErrPriceCeiling rejects computed totals at or above the hard ceiling.
	ErrPriceCeiling = errors.New("price above hard ceiling")

	// ErrAmountMismatch aborts payment confirmation when the processor-reported
	// amount or currency disagrees with the recomputed price.
	ErrAmountMismatch = errors.New("amount or currency mismatch")

	// ErrRefundOverflow refuses refund events whose refund list was truncated
	// by the processor; an explicit failure beats a silent undercount.
	ErrRefundOverflow = errors.New("more refunds than fetched")

	// ErrMissingTrackingLink rejects delivery events without a tracking link.
	ErrMissingTrackingLink = errors.New("tracking link missing")

	// ErrEmailCapExceeded rejects delivery notifications beyond the cap.
	ErrEmailCapExceeded = errors.New("delivery email cap exceeded")

	// ErrGeometryInvalid rejects map posters whose center lies outside the
	// declared bounding box.
	ErrGeometryInvalid = errors.New("map center outside bounding box")

	// ErrMissingOrderRef is returned when a payment event carries no order id
	// in its metadata.
	ErrMissingOrderRef = errors.New("order reference missing from event")
)
