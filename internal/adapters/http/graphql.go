package http

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"

	"github.com/samirrijal/agrodemarc/internal/core/domain"
)

// buildSchema creates the GraphQL schema wired to the demarcation service.
// Object fields resolve through the json tags of the domain types.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	geoPointType := graphql.NewObject(graphql.ObjectConfig{
		Name: "GeoPoint",
		Fields: graphql.Fields{
			"lat": &graphql.Field{Type: graphql.Float},
			"lng": &graphql.Field{Type: graphql.Float},
		},
	})

	gpsPointType := graphql.NewObject(graphql.ObjectConfig{
		Name: "GpsPoint",
		Fields: graphql.Fields{
			"id":          &graphql.Field{Type: graphql.String},
			"lat":         &graphql.Field{Type: graphql.Float},
			"lng":         &graphql.Field{Type: graphql.Float},
			"accuracy":    &graphql.Field{Type: graphql.Float},
			"captured_at": &graphql.Field{Type: graphql.DateTime},
		},
	})

	boundsType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Bounds",
		Fields: graphql.Fields{
			"min_lat": &graphql.Field{Type: graphql.Float},
			"min_lng": &graphql.Field{Type: graphql.Float},
			"max_lat": &graphql.Field{Type: graphql.Float},
			"max_lng": &graphql.Field{Type: graphql.Float},
		},
	})

	demarcationType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Demarcation",
		Fields: graphql.Fields{
			"id":               &graphql.Field{Type: graphql.String},
			"producer_id":      &graphql.Field{Type: graphql.String},
			"points":           &graphql.Field{Type: graphql.NewList(gpsPointType)},
			"area_hectares":    &graphql.Field{Type: graphql.Float},
			"perimeter_meters": &graphql.Field{Type: graphql.Float},
			"bounds":           &graphql.Field{Type: boundsType},
			"created_at":       &graphql.Field{Type: graphql.DateTime},
		},
	})

	sessionType := graphql.NewObject(graphql.ObjectConfig{
		Name: "CaptureSession",
		Fields: graphql.Fields{
			"session_id":       &graphql.Field{Type: graphql.String},
			"producer_id":      &graphql.Field{Type: graphql.String},
			"mode":             &graphql.Field{Type: graphql.String},
			"points":           &graphql.Field{Type: graphql.NewList(gpsPointType)},
			"area_hectares":    &graphql.Field{Type: graphql.Float},
			"perimeter_meters": &graphql.Field{Type: graphql.Float},
			"version":          &graphql.Field{Type: graphql.Int},
		},
	})

	measurementType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Measurement",
		Fields: graphql.Fields{
			"points":           &graphql.Field{Type: graphql.Int},
			"area_hectares":    &graphql.Field{Type: graphql.Float},
			"perimeter_meters": &graphql.Field{Type: graphql.Float},
			"centroid":         &graphql.Field{Type: geoPointType},
		},
	})

	pointInput := graphql.NewInputObject(graphql.InputObjectConfig{
		Name: "PointInput",
		Fields: graphql.InputObjectConfigFieldMap{
			"lat": &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.Float)},
			"lng": &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.Float)},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"demarcation": &graphql.Field{
				Type:        demarcationType,
				Description: "Get a saved demarcation by ID",
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.Demarcations.Get(p.Context, p.Args["id"].(string))
				},
			},
			"demarcationsByProducer": &graphql.Field{
				Type:        graphql.NewList(demarcationType),
				Description: "List a producer's demarcations, newest first",
				Args: graphql.FieldConfigArgument{
					"producer_id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.Demarcations.ListByProducer(p.Context, p.Args["producer_id"].(string))
				},
			},
			"demarcationsInBounds": &graphql.Field{
				Type:        graphql.NewList(demarcationType),
				Description: "Demarcations overlapping a map viewport",
				Args: graphql.FieldConfigArgument{
					"min_lat": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"min_lng": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"max_lat": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"max_lng": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"limit":   &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 100},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					b := domain.Bounds{
						MinLat: p.Args["min_lat"].(float64),
						MinLng: p.Args["min_lng"].(float64),
						MaxLat: p.Args["max_lat"].(float64),
						MaxLng: p.Args["max_lng"].(float64),
					}
					return deps.Demarcations.ListInBounds(p.Context, b, p.Args["limit"].(int))
				},
			},
			"session": &graphql.Field{
				Type:        sessionType,
				Description: "Current state of an open capture session",
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					sess, err := deps.Demarcations.Session(p.Args["id"].(string))
					if err != nil {
						return nil, err
					}
					return sess.Snapshot(), nil
				},
			},
			"measure": &graphql.Field{
				Type:        measurementType,
				Description: "Area and perimeter of an outline given in vertex order",
				Args: graphql.FieldConfigArgument{
					"points": &graphql.ArgumentConfig{
						Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(pointInput))),
					},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					raw, _ := p.Args["points"].([]interface{})
					points := make([]domain.GeoPoint, 0, len(raw))
					for i, r := range raw {
						m, ok := r.(map[string]interface{})
						if !ok {
							return nil, fmt.Errorf("point %d: unexpected input", i+1)
						}
						lat, _ := m["lat"].(float64)
						lng, _ := m["lng"].(float64)
						points = append(points, domain.GeoPoint{Lat: lat, Lng: lng})
					}
					return deps.Demarcations.Measure(points)
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query: queryType,
	})
}

// GraphQLHandler serves the GraphQL endpoint.
func GraphQLHandler(deps *Dependencies) fiber.Handler {
	schema, err := buildSchema(deps)
	if err != nil {
		// This would be a programming error in the schema definition
		panic("graphql schema build: " + err.Error())
	}

	type gqlRequest struct {
		Query         string                 `json:"query"`
		OperationName string                 `json:"operationName"`
		Variables     map[string]interface{} `json:"variables"`
	}

	return func(c *fiber.Ctx) error {
		var req gqlRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}

		result := graphql.Do(graphql.Params{
			Schema:         schema,
			RequestString:  req.Query,
			VariableValues: req.Variables,
			OperationName:  req.OperationName,
			Context:        c.UserContext(),
		})

		return c.JSON(result)
	}
}
