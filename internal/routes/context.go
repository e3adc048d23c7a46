package routes

import "github.com/gin-gonic/gin"

const tagContextKey = "_route_tag"

// UnmatchedTag 用于没有命中任何前缀的请求
const UnmatchedTag = "unmatched"

// Tagged 把路由标签写入 gin.Context
func Tagged(tag string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(tagContextKey, tag)
		c.Next()
	}
}

// TagFromContext 读取当前请求所属的路由标签
func TagFromContext(c *gin.Context) string {
	if v, ok := c.Get(tagContextKey); ok {
		if tag, ok := v.(string); ok {
			return tag
		}
	}
	return UnmatchedTag
}
