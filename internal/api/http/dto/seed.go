package dto

type RegisterRequest struct {
	OTP string `json:"otp" binding:"required"`
	IP  string `json:"ip" binding:"required"`
	SSH string `json:"ssh" binding:"required"`
	CSR string `json:"csr" binding:"required"`
}

type RegisterResponse struct {
	Admin string `json:"admin"`
	Host  string `json:"host"`
	CA    string `json:"ca"`
	Cert  string `json:"cert"`
}

// ErrorResponse carries one of the tags IoError, DataError, OtpError,
// CertError or AllocationExhausted.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
