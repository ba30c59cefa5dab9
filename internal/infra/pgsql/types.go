package pgsql

import (
	"context"

	"gorm.io/gorm"
)

type PageResult[T any] struct {
	List      []T   `json:"list"`
	Total     int64 `json:"total"`
	Page      int   `json:"page"`
	PageSize  int   `json:"page_size"`
	PageCount int   `json:"page_count"`
}

// Paginate counts and loads one page of the rows selected by query. page starts at 1.
func Paginate[T any](ctx context.Context, query *gorm.DB, page, pageSize int) (*PageResult[T], error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	res := &PageResult[T]{Page: page, PageSize: pageSize, List: []T{}}

	q := query.WithContext(ctx)
	if err := q.Session(&gorm.Session{}).Count(&res.Total).Error; err != nil {
		return nil, err
	}
	if err := q.Offset((page - 1) * pageSize).Limit(pageSize).Find(&res.List).Error; err != nil {
		return nil, err
	}
	res.PageCount = PageCount(res.Total, pageSize)
	return res, nil
}

func PageCount(total int64, pageSize int) int {
	if pageSize <= 0 {
		return 0
	}
	return int((total + int64(pageSize) - 1) / int64(pageSize))
}
