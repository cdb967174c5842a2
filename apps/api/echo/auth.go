package echoapi

import (
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/mahudhurio/core"
	"github.com/trezcool/mahudhurio/core/user"
)

const (
	tokenContextKey = "userToken"
	tokenAudience   = "Attendance"
)

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.StandardClaims
	Name      string   `json:"name,omitempty"`
	Roles     []string `json:"roles,omitempty"`
	TeacherID string   `json:"teacher_id,omitempty"`
	StudentID string   `json:"student_id,omitempty"`
	ClassIDs  []string `json:"class_ids,omitempty"`
}

func jwtConfig(conf *core.Config) middleware.JWTConfig {
	return middleware.JWTConfig{
		SigningKey:    []byte(conf.SecretKey),
		SigningMethod: middleware.AlgorithmHS256,
		ContextKey:    tokenContextKey,
		Claims:        new(Claims),
	}
}

// NewClaims returns the claims of a token carrying sess, valid for server.jwtExpirationDelta.
func NewClaims(sess user.Session, conf *core.Config) *Claims {
	now := time.Now()
	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    conf.AppName,
			Subject:   sess.UserID,
			Audience:  tokenAudience,
			ExpiresAt: now.Add(conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  now.Unix(),
		},
		Name:      sess.Name,
		Roles:     sess.Roles,
		TeacherID: sess.TeacherID,
		StudentID: sess.StudentID,
		ClassIDs:  sess.ClassIDs,
	}
}

// Valid also rejects tokens carrying unknown roles.
func (c Claims) Valid() error {
	if err := c.StandardClaims.Valid(); err != nil {
		return err
	}
	if !user.ValidRoles(c.Roles) {
		return errors.New("token carries unknown roles")
	}
	return nil
}

func (c Claims) Session() user.Session {
	return user.Session{
		UserID:    c.Subject,
		Name:      c.Name,
		Roles:     c.Roles,
		TeacherID: c.TeacherID,
		StudentID: c.StudentID,
		ClassIDs:  c.ClassIDs,
	}
}

// GenerateToken generates a signed JWT token string representing the Claims.
func GenerateToken(claims *Claims, conf *core.Config) (string, error) {
	cfg := jwtConfig(conf)
	token := jwt.NewWithClaims(jwt.GetSigningMethod(cfg.SigningMethod), claims)

	ss, err := token.SignedString(cfg.SigningKey)
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(tokenContextKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}

// sessionMiddleware turns the validated token into a user.Session carried by the request context.
func sessionMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		claims, err := getContextClaims(ctx)
		if err != nil {
			return err
		}
		req := ctx.Request()
		ctx.SetRequest(req.WithContext(user.NewContext(req.Context(), claims.Session())))
		return next(ctx)
	}
}

// getContextSession returns the request's session; unauthenticated requests get an anonymous one.
func getContextSession(ctx echo.Context) user.Session {
	sess, _ := user.FromContext(ctx.Request().Context())
	return sess
}
