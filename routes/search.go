package routes

import (
	"net/http"
	"strconv"

	"docllama/services"
	"docllama/utils"

	"github.com/gin-gonic/gin"
)

func SetupSearchRoutes(router *gin.Engine, search *services.SearchService) {
	router.GET("/search", func(c *gin.Context) {
		k := services.DefaultSearchK
		if raw := c.Query("k"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil {
				utils.RespondWithBadRequest(c, "k must be an integer", gin.H{"k": raw})
				return
			}
			k = parsed
		}

		resp, err := search.Search(c.Request.Context(), c.Query("q"), k)
		if err != nil {
			utils.RespondWithServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, resp)
	})
}
