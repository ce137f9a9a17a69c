package gql

import (
	"context"

	"github.com/gobuffalo/packr/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/graph-gophers/graphql-go"
	jsoniter "github.com/json-iterator/go"
	"github.com/troydota/client.vote.komodohype.dev/server/gql/resolvers"
	"github.com/troydota/client.vote.komodohype.dev/utils"

	log "github.com/sirupsen/logrus"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type GQLRequest struct {
	Query         string                 `json:"query"`
	Variables     map[string]interface{} `json:"variables"`
	OperationName string                 `json:"operationName"`
}

// Schema parses the bundled schema against root.
func Schema(root *resolvers.RootResolver) (*graphql.Schema, error) {
	box := packr.New("gql", "./schema")

	s, err := box.FindString("schema.gql")
	if err != nil {
		return nil, err
	}

	return graphql.ParseSchema(s, root)
}

func GQL(app fiber.Router, root *resolvers.RootResolver) error {
	schema, err := Schema(root)
	if err != nil {
		return err
	}

	app.Post("/gql", func(c *fiber.Ctx) error {
		req := &GQLRequest{}
		if err := json.Unmarshal(c.Body(), req); err != nil || req.Query == "" {
			log.WithField("component", "gql").Errorf("gql req, err=%v", err)
			return c.Status(400).JSON(fiber.Map{
				"status":  400,
				"message": "Invalid GraphQL Request.",
			})
		}

		ctx := context.WithValue(c.UserContext(), utils.Key("ip"), c.IP())
		result := schema.Exec(ctx, req.Query, req.OperationName, req.Variables)

		status := 200
		if len(result.Errors) > 0 {
			status = 400
		}

		return c.Status(status).JSON(result)
	})

	return nil
}
