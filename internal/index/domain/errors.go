package domain

import "errors"

var (
	ErrIndexNotFound       = errors.New("index_not_found")
	ErrPriceIndexNotFound  = errors.New("price_index_not_found")
	ErrPointFigureNotFound = errors.New("point_figure_not_found")
)
