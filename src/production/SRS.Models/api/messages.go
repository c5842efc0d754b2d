package api_models

// Messages returned to API clients
const (
	WelcomeMessage        = "API de supervision de capteurs environnementaux"
	SensorNotFoundMessage = "Capteur non trouvé"
	ValueRequiredMessage  = "La valeur est requise"
	InvalidBodyMessage    = "Corps de requête JSON invalide"
	RouteNotFoundMessage  = "Route non trouvée"
	InternalErrorMessage  = "Erreur interne du serveur"
)

// MessageResponse is the body of every non-record response
type MessageResponse struct {
	Message string `json:"message"`
}
