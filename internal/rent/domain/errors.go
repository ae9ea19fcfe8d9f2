package domain

import "errors"

var (
	ErrRentNotFound           = errors.New("rent_not_found")
	ErrRentTypeNotImplemented = errors.New("rent_type_not_implemented")
	ErrInvalidPeriod          = errors.New("invalid_period")
	ErrDueDatesPerYear        = errors.New("invalid_due_dates_per_year")
	ErrPointFigureImmutable   = errors.New("start_price_index_point_figure_immutable")
)
