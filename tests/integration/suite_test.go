package integration

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/field-service-api/config"
	"github.com/kendall-kelly/field-service-api/models"
	"github.com/kendall-kelly/field-service-api/routes"
	"github.com/kendall-kelly/field-service-api/tests/testutil"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"
)

// apiSuite serves the full router over a fresh database per test, with a
// mock authentication layer that acts as whichever user as() selected
type apiSuite struct {
	suite.Suite
	router *gin.Engine
	db     *gorm.DB

	actor      *models.User
	admin      *models.User
	agent      *models.User
	technician *models.User
	otherTech  *models.User
}

// SetupTest runs before each test
func (suite *apiSuite) SetupTest() {
	gin.SetMode(gin.TestMode)
	testutil.MustSetTestEnvironment(suite.T())
	config.SetConfig(testutil.TestConfig())

	suite.db = testutil.NewTestDB(suite.T())
	suite.admin = testutil.CreateUser(suite.T(), suite.db, models.RoleAdmin, "admin@example.com")
	suite.agent = testutil.CreateUser(suite.T(), suite.db, models.RoleSalesAgent, "agent@example.com")
	suite.technician = testutil.CreateUser(suite.T(), suite.db, models.RoleTechnician, "tech@example.com")
	suite.otherTech = testutil.CreateUser(suite.T(), suite.db, models.RoleTechnician, "other@example.com")

	suite.router = gin.New()
	routes.Register(suite.router, testutil.MockAuthMiddleware(func() *models.User { return suite.actor }))
}

// as switches the authenticated user for the following requests
func (suite *apiSuite) as(user *models.User) *apiSuite {
	suite.actor = user
	return suite
}

func (suite *apiSuite) request(method, path string, body interface{}) (int, map[string]interface{}) {
	var req *http.Request
	if body != nil {
		payload, err := json.Marshal(body)
		suite.Require().NoError(err)
		req = httptest.NewRequest(method, path, bytes.NewBuffer(payload))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}

	w := httptest.NewRecorder()
	suite.router.ServeHTTP(w, req)

	var response map[string]interface{}
	if w.Body.Len() > 0 {
		suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &response))
	}
	return w.Code, response
}

func dataOf(response map[string]interface{}) map[string]interface{} {
	return response["data"].(map[string]interface{})
}

func idOf(response map[string]interface{}) uint {
	return uint(dataOf(response)["id"].(float64))
}

func codeOf(response map[string]interface{}) string {
	return response["error"].(map[string]interface{})["code"].(string)
}

