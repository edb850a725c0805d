package docs

// @title           Delivery Tracking API
// @version         1.0
// @description     Tracks crowdshipping deliveries in real time. Exposes delivery lookups, public tracking by code, and WebSocket channels for couriers and observers. Payment state is reconciled against delivery lifecycle in the background.

// @contact.name   API Support
// @contact.email  support@ecodeli.example

// @host      localhost:3000
// @BasePath  /

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.
