package domain

// Position addresses a cell by row and column.
type Position struct {
	Row    int `json:"row"`
	Column int `json:"column"`
}

// Index is row*width + column. No bounds check here.
func (p Position) Index(width int) int {
	return p.Row*width + p.Column
}

func PositionOf(index, width int) Position {
	return Position{Row: index / width, Column: index % width}
}

// Seat is what the seat endpoint hands out.
type Seat struct {
	Row    int   `json:"row"`
	Column int   `json:"column"`
	Index  int   `json:"index"`
	Color  Color `json:"color"`
}
