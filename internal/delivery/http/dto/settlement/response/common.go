package response

type Envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
}

type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`
}

type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

func OK(data interface{}) Envelope {
	return Envelope{Success: true, Data: data}
}
