package handlers

import (
	"math/big"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/84adam/zkauth/auth"
	"github.com/84adam/zkauth/crypto"
	"github.com/84adam/zkauth/models"
)

func groupParams(algorithm string, group crypto.Group) models.GroupParams {
	params := models.GroupParams{
		Algorithm: algorithm,
		Group:     group.Name(),
		Order:     group.Order().Text(16),
		G:         group.EncodeElement(group.G()),
		H:         group.EncodeElement(group.H()),
	}
	if m, ok := group.(interface{ Modulus() *big.Int }); ok {
		params.Modulus = m.Modulus().Text(16)
	}
	return params
}

// GetParams returns the public parameters of every algorithm the server
// accepts, so clients can check they derive keys in the same group.
func GetParams(c echo.Context) error {
	var params []models.GroupParams
	for _, algorithm := range []string{auth.AlgorithmInteractive, auth.AlgorithmNonInteractive} {
		group, err := Service.GroupForAlgorithm(algorithm)
		if err != nil {
			return serviceError(c, "params", err)
		}
		params = append(params, groupParams(algorithm, group))
	}
	return JSONResponse(c, http.StatusOK, "", params)
}
