package server

// Request types for WebSocket commands with go-playground/validator struct
// tags. Bounds mirror the supported analysis parameter ranges.

// BindRequest is the request body for monitor/bind.
type BindRequest struct {
	ID string `json:"id" validate:"required,max=512"`
}

// StartRequest is the request body for monitor/start.
type StartRequest struct {
	ChunkSize int `json:"chunk_size" validate:"omitempty,gte=256,lte=8192"`
}

// ConfigureRequest is the request body for spectrum/configure. Nil fields
// keep the current setting.
type ConfigureRequest struct {
	Bands     *int     `json:"bands" validate:"omitempty,gte=1,lte=64"`
	ChunkSize *int     `json:"chunk_size" validate:"omitempty,gte=256,lte=8192"`
	Dancy     *float64 `json:"dancy" validate:"omitempty,gt=0,lte=64"`
	FrameRate *int     `json:"frame_rate" validate:"omitempty,gte=1,lte=60"`
}
