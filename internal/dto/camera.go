package dto

// PTZRequest is the body of POST /ptz. Op and Speed are optional.
type PTZRequest struct {
	Op    string `json:"op"`
	Speed *int   `json:"speed"`
}

type PTZResponse struct {
	OK bool   `json:"ok"`
	Op string `json:"op"`
}

// DetectResponse is the verdict for the current frame.
type DetectResponse struct {
	Found      bool    `json:"found"`
	Confidence float64 `json:"confidence"`
}

type HealthResponse struct {
	Status     string `json:"status"`
	Camera     string `json:"camera"`
	ActiveScan string `json:"active_scan,omitempty"`
}
