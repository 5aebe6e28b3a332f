package postgres

import (
	"github.com/jackc/pgx/v4"
	"marketplace-api/internal/storage"
)

var imageColumns = []string{"product_id", "position", "image_id", "url"}

type imageRow struct {
	productID string
	position  int32
	image     storage.Image
}

type imageBulk struct {
	rows []imageRow
	idx  int
}

func (r imageRow) toInterface() []interface{} {
	return []interface{}{r.productID, r.position, r.image.ID, r.image.URL}
}

// imageRows numbers images after the given position
func imageRows(productID string, after int32, images []storage.Image) []imageRow {
	rows := make([]imageRow, len(images))
	for i, img := range images {
		rows[i] = imageRow{
			productID: productID,
			position:  after + int32(i) + 1,
			image:     img,
		}
	}
	return rows
}

func copyFromBulk(rows []imageRow) pgx.CopyFromSource {
	return &imageBulk{
		rows: rows,
		idx:  -1,
	}
}

func (b *imageBulk) Next() bool {
	b.idx++
	return b.idx < len(b.rows)
}

func (b *imageBulk) Values() ([]interface{}, error) {
	return b.rows[b.idx].toInterface(), nil
}

func (b *imageBulk) Err() error {
	return nil
}
