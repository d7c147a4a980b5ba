package models

import (
	"fmt"
	"time"
)

const defaultEmptyMessage = "No data received from meta service"

// Envelope is the uniform reply shape of every meta pattern
type Envelope[T any] struct {
	Data        []T    `json:"data"`
	Count       int    `json:"count"`
	Status      bool   `json:"status"`
	Message     string `json:"message"`
	CurrentPage *int   `json:"currentPage,omitempty"`
	Limit       *int   `json:"limit,omitempty"`
	TotalPages  *int   `json:"totalPages,omitempty"`
}

// Normalize replaces absent fields with their defaults so callers never see nil data
func (e Envelope[T]) Normalize() Envelope[T] {
	if e.Data == nil {
		e.Data = []T{}
	}
	if e.Count < 0 {
		e.Count = 0
	}
	if e.Message == "" {
		e.Message = defaultEmptyMessage
	}
	return e
}

// FailedEnvelope is what every failed call collapses into at the caller boundary
func FailedEnvelope[T any](message string) Envelope[T] {
	return Envelope[T]{
		Data:    []T{},
		Count:   0,
		Status:  false,
		Message: message,
	}
}

// Ack is the reply of command-style patterns such as cache invalidation
type Ack struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
}

func (a Ack) Normalize() Ack {
	if a.Message == "" {
		a.Message = "No acknowledgement received from meta service"
	}
	return a
}

// SyncDate is the bare YYYY-MM-DD string sent to the by-date patterns
type SyncDate string

func (d SyncDate) Validate() error {
	if _, err := time.Parse(time.DateOnly, string(d)); err != nil {
		return fmt.Errorf("date %q is not YYYY-MM-DD", string(d))
	}
	return nil
}

type PaginationParams struct {
	Page   *int   `json:"page,omitempty"`
	Limit  *int   `json:"limit,omitempty"`
	Search string `json:"search,omitempty"`
}

// Validate accepts absent paging fields; the remote side applies its own defaults
func (p PaginationParams) Validate() error {
	if p.Page != nil && *p.Page < 1 {
		return fmt.Errorf("page must be >= 1, got %d", *p.Page)
	}
	if p.Limit != nil && *p.Limit <= 0 {
		return fmt.Errorf("limit must be > 0, got %d", *p.Limit)
	}
	return nil
}

type ByIDParams struct {
	ID int64 `json:"id"`
}

func (p ByIDParams) Validate() error {
	if p.ID <= 0 {
		return fmt.Errorf("id must be > 0, got %d", p.ID)
	}
	return nil
}

type InvalidateParams struct {
	ID *int64 `json:"id,omitempty"`
}

func (p InvalidateParams) Validate() error {
	if p.ID != nil && *p.ID <= 0 {
		return fmt.Errorf("id must be > 0, got %d", *p.ID)
	}
	return nil
}
