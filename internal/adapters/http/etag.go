package http

import (
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// ETagMiddleware tags successful GET bodies with a weak validator and
// answers 304 when If-None-Match already carries it. Session state and
// frames are sent no-store and never tagged.
func ETagMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := c.Next(); err != nil {
			return err
		}
		if !taggable(c) {
			return nil
		}

		tag := weakETag(c.Response().Body())
		c.Set(fiber.HeaderETag, tag)
		if ifNoneMatch(c.Get(fiber.HeaderIfNoneMatch), tag) {
			c.Status(fiber.StatusNotModified)
			c.Response().ResetBody()
		}
		return nil
	}
}

func taggable(c *fiber.Ctx) bool {
	return c.Method() == fiber.MethodGet &&
		c.Response().StatusCode() == fiber.StatusOK &&
		len(c.Response().Body()) > 0 &&
		!strings.Contains(c.GetRespHeader(fiber.HeaderCacheControl), "no-store")
}

func weakETag(body []byte) string {
	h := fnv.New64a()
	_, _ = h.Write(body)
	return fmt.Sprintf(`W/"%016x"`, h.Sum64())
}

// ifNoneMatch reports whether header lists tag or the wildcard.
func ifNoneMatch(header, tag string) bool {
	for _, v := range strings.Split(header, ",") {
		v = strings.TrimSpace(v)
		if v == "*" || v == tag || "W/"+v == tag {
			return true
		}
	}
	return false
}
