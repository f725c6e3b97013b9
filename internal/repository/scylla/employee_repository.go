package scylla

import (
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"fraud-detection-service/internal/model"
	"fraud-detection-service/internal/util"
)

type EmployeeRepository struct {
	client *ScyllaClient
}

func NewEmployeeRepository(client *ScyllaClient, logger *zap.Logger) *EmployeeRepository {
	// Using global util logger instead of individual logger
	return &EmployeeRepository{
		client: client,
	}
}

func (r *EmployeeRepository) CreateEmployee(employee *model.Employee) error {
	now := time.Now().UTC()

	query := r.client.Prepared.CreateEmployee.Bind(
		employee.ID, employee.Name, employee.Role, employee.Email, now)

	if err := r.client.ExecuteWithRetry(query, 2); err != nil {
		util.Error("Failed to create employee",
			zap.Int64("employee_id", employee.ID),
			zap.Error(err))
		return fmt.Errorf("failed to create employee: %w", err)
	}

	util.Info("Employee created successfully",
		zap.Int64("employee_id", employee.ID),
		zap.String("role", employee.Role))

	return nil
}

func (r *EmployeeRepository) GetEmployeeByID(employeeID int64) (*model.Employee, error) {
	employee := &model.Employee{}
	var createdAt time.Time

	query := r.client.Prepared.GetEmployeeByID.Bind(employeeID)

	err := r.client.ScanWithRetry(query,
		&employee.ID, &employee.Name, &employee.Role, &employee.Email, &createdAt)

	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, fmt.Errorf("employee not found with ID: %d", employeeID)
		}
		util.Error("Failed to get employee by ID",
			zap.Int64("employee_id", employeeID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get employee by ID: %w", err)
	}

	return employee, nil
}

// ListEmployees returns the full employee directory. The table is small
// enough (one row per workstation seat) for a full scan.
func (r *EmployeeRepository) ListEmployees() ([]model.Employee, error) {
	iter := r.client.Prepared.ListEmployees.Iter()

	var employees []model.Employee
	var employee model.Employee
	var createdAt time.Time

	for iter.Scan(&employee.ID, &employee.Name, &employee.Role, &employee.Email, &createdAt) {
		employees = append(employees, employee)
		employee = model.Employee{}
	}

	if err := iter.Close(); err != nil {
		util.Error("Failed to list employees", zap.Error(err))
		return nil, fmt.Errorf("failed to list employees: %w", err)
	}

	return employees, nil
}

func (r *EmployeeRepository) ListEmployeeIDs() ([]int64, error) {
	employees, err := r.ListEmployees()
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(employees))
	for _, employee := range employees {
		ids = append(ids, employee.ID)
	}
	return ids, nil
}

func (r *EmployeeRepository) CountEmployees() (int64, error) {
	var count int64
	query := r.client.Query(`SELECT COUNT(*) FROM employees`)

	if err := r.client.ScanWithRetry(query, &count); err != nil {
		util.Error("Failed to count employees", zap.Error(err))
		return 0, fmt.Errorf("failed to count employees: %w", err)
	}

	return count, nil
}
